package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/habitnest/habitnest/internal/domain"
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of grants to show")
	for _, c := range []*cobra.Command{rewardsCmd, checkinCmd, historyCmd} {
		addUserFlag(c)
		rootCmd.AddCommand(c)
	}
}

var historyLimit int

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "Show a user's balances, streak and check-in calendar",
	RunE:  runRewards,
}

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Claim today's daily check-in",
	RunE:  runCheckin,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent reward grants",
	RunE:  runHistory,
}

func runRewards(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	today := d.Today()
	sum, err := d.Credit.Summary(ctx, userFlag, today)
	if err != nil {
		return err
	}
	st, err := d.Checkins.Calendar(ctx, userFlag, today)
	if err != nil {
		return err
	}

	fmt.Printf("User:     %s\n", sum.UserID)
	fmt.Printf("Coins:    %d\n", sum.Coins)
	fmt.Printf("Diamonds: %d\n", sum.Diamonds)
	fmt.Printf("Streak:   %d day(s)\n", sum.Streak)
	fmt.Printf("\nCheck-in (%s):\n", today)
	renderCalendar(os.Stdout, st.Calendar)
	if st.Calendar.IsCheckedInToday {
		fmt.Println("  Checked in today.")
	}
	return nil
}

func runCheckin(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Checkins.CheckIn(context.Background(), userFlag, d.Today())
	if errors.Is(err, domain.ErrAlreadyCheckedIn) {
		fmt.Println("Already checked in today. Come back tomorrow.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Checked in: day %d of %d, +%d coins", res.Ledger.DailyCheckin+1, domain.CheckinCycle, res.Grant.Coins)
	if res.Grant.Diamonds > 0 {
		fmt.Printf(", +%d diamond(s)", res.Grant.Diamonds)
	}
	fmt.Println()
	renderCalendar(os.Stdout, res.Calendar)
	fmt.Printf("Balance: %d coins, %d diamonds\n", res.Ledger.Coins, res.Ledger.Diamonds)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	grants, err := d.Credit.History(context.Background(), userFlag, historyLimit)
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		fmt.Println("No rewards yet. Run 'habitnest checkin' to get started.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GRANTED\tSOURCE\tREF\tCOINS\tDIAMONDS")
	for _, g := range grants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			g.GrantedAt.In(d.Location).Format("2006-01-02 15:04"),
			g.Source,
			g.Ref,
			g.Coins,
			g.Diamonds,
		)
	}
	return w.Flush()
}
