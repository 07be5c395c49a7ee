package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stellarops/stellarops/internal/daemon"
	"github.com/stellarops/stellarops/internal/store/sqlitestore"
)

func init() {
	satelliteCmd.AddCommand(satelliteListCmd)
	rootCmd.AddCommand(satelliteCmd)
}

var satelliteCmd = &cobra.Command{
	Use:   "satellite",
	Short: "Inspect satellites known to the durable store",
}

var satelliteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List satellites from the durable store",
	RunE:    runSatelliteList,
}

func runSatelliteList(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	dbDir := cfg.Database.Dir
	if dbDir == "" {
		dbDir = daemon.StellarOpsHome()
	}

	store, err := sqlitestore.Open(dbDir)
	if err != nil {
		return err
	}
	defer store.Close()

	satellites, err := store.ListSatellites(context.Background())
	if err != nil {
		return err
	}

	if len(satellites) == 0 {
		fmt.Println("No satellites registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODE\tENERGY\tNORAD")
	for _, s := range satellites {
		norad := "-"
		if s.NoradID != nil {
			norad = fmt.Sprintf("%d", *s.NoradID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n", s.ID, s.Name, s.Mode, s.Energy, norad)
	}
	return w.Flush()
}
