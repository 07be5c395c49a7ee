package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stellarops/stellarops/internal/tle"
)

func init() {
	tleCmd.AddCommand(tleParseCmd)
	rootCmd.AddCommand(tleCmd)
}

var tleCmd = &cobra.Command{
	Use:   "tle",
	Short: "Two-line element set utilities",
}

var tleParseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a file of two-line element sets and print the decoded records",
	Args:  cobra.ExactArgs(1),
	RunE:  runTLEParse,
}

func runTLEParse(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	records := tle.ParseStream(string(data))
	if len(records) == 0 {
		fmt.Println("No parseable TLE records found.")
		return nil
	}

	for _, r := range records {
		fmt.Printf("%s (NORAD %d)\n", r.Name, r.NoradID)
		fmt.Printf("  epoch:        %s\n", r.Epoch.Format("2006-01-02T15:04:05Z"))
		fmt.Printf("  inclination:  %.4f deg\n", r.Inclination)
		fmt.Printf("  eccentricity: %.7f\n", r.Eccentricity)
		fmt.Printf("  mean motion:  %.8f rev/day\n", r.MeanMotion)
		fmt.Println()
	}
	return nil
}
