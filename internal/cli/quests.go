package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/habitnest/habitnest/internal/app/engagement"
)

func init() {
	addUserFlag(questsCmd)
	addUserFlag(claimCmd)
	rootCmd.AddCommand(questsCmd, claimCmd, importQuestsCmd)
}

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "List active quests with the user's progress",
	RunE:  runQuests,
}

var claimCmd = &cobra.Command{
	Use:   "claim <quest-id>",
	Short: "Claim a completed quest's reward",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaim,
}

var importQuestsCmd = &cobra.Command{
	Use:   "import-quests <file.toml>",
	Short: "Create or update quest definitions from a TOML catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportQuests,
}

func runQuests(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	views, err := d.Quests.List(context.Background(), userFlag, d.Today())
	if err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("No active quests. Run 'habitnest import-quests <file>' to add some.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tPROGRESS\tREWARD\tSTATUS")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %d/%d\t%d %s\t%s\n",
			v.Quest.ID,
			v.Quest.Type,
			v.Quest.Title,
			renderBar(v.Percent),
			v.Progress.CurrentProgress,
			v.Quest.TargetProgress,
			v.Quest.RewardAmount,
			v.Quest.RewardType,
			v.Status,
		)
	}
	return w.Flush()
}

func runClaim(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	v, l, err := d.Quests.Claim(context.Background(), userFlag, args[0], d.Today(), d.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Claimed %q: +%d %s\n", v.Quest.Title, v.Quest.RewardAmount, v.Quest.RewardType)
	fmt.Printf("Balance: %d coins, %d diamonds\n", l.Coins, l.Diamonds)
	return nil
}

func runImportQuests(cmd *cobra.Command, args []string) error {
	quests, err := engagement.LoadCatalog(args[0])
	if err != nil {
		return err
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.Quests.Import(context.Background(), quests)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d quest(s) from %s\n", n, args[0])
	return nil
}
