package tle

import (
	"strings"

	"github.com/stellarops/stellarops/internal/domain"
)

// ParseStream splits text into consecutive TLE records — a line starting
// with "1 " begins a 2-line record, anything else begins a 3-line (named)
// record — and parses each. Invalid records are skipped rather than
// aborting the whole stream; ParseStream returns every record that parsed
// successfully (spec.md §4.8).
func ParseStream(text string) []domain.TLE {
	lines := nonEmptyLines(text)
	var out []domain.TLE

	for i := 0; i < len(lines); {
		if strings.HasPrefix(lines[i], "1 ") {
			if i+1 >= len(lines) {
				break
			}
			rec, err := ParseRecord(lines[i : i+2])
			if err == nil {
				out = append(out, rec)
			}
			i += 2
			continue
		}

		// Name line beginning a 3-line record.
		if i+2 >= len(lines) {
			break
		}
		rec, err := ParseRecord(lines[i : i+3])
		if err == nil {
			out = append(out, rec)
			i += 3
			continue
		}
		// Didn't parse as a 3-line record — try treating this line as
		// noise and resync on the next line.
		i++
	}
	return out
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
