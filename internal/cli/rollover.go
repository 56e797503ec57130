package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(rolloverCmd)
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Create today's habit logs for every saved goal",
	Long: `Create today's habit logs for every saved goal that does not have them yet.
The server does this on a timer; run it by hand after downtime.`,
	RunE: runRollover,
}

func runRollover(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.RolloverOnce(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Created %d log(s) for %s\n", n, d.Today())
	return nil
}
