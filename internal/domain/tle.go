package domain

import "time"

// TLE is the parsed form of a Two-Line Element set (spec.md §3, §4.8). The
// original two lines are kept verbatim alongside the decoded fields so a
// byte round-trip is always possible (spec.md §8).
type TLE struct {
	NoradID          int       `json:"norad_id"`
	Name             string    `json:"name"`
	Classification   string    `json:"classification"`
	IntlDesignator   string    `json:"intl_designator"`
	Epoch            time.Time `json:"epoch"`
	MeanMotionDot    float64   `json:"mean_motion_dot"`
	MeanMotionDotDot float64   `json:"mean_motion_dot_dot"`
	BStarDrag        float64   `json:"bstar_drag"`
	ElementSetNumber int       `json:"element_set_number"`
	Inclination      float64   `json:"inclination"`
	RAAN             float64   `json:"raan"`
	Eccentricity     float64   `json:"eccentricity"`
	ArgOfPerigee     float64   `json:"arg_of_perigee"`
	MeanAnomaly      float64   `json:"mean_anomaly"`
	MeanMotion       float64   `json:"mean_motion"`
	RevNumber        int       `json:"rev_number"`

	ChecksumValid bool `json:"checksum_valid"`

	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}
