package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var unlockYes bool

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Clear a lock left behind by a session that never finished",
	Long: `Remove the lock file from the shared repository and push the removal.

Only do this when you are sure nobody is playing: a session that crashed or was
killed keeps the lock forever, and this is the way to clear it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !unlockYes {
			return errors.New("refusing to clear the lock without --yes")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		cleared, err := a.locker.ForceRelease(cmd.Context())
		if err != nil {
			return err
		}
		if !cleared {
			PrintInfo(fmt.Sprintf("%s is not locked.", a.cfg.World))
			return nil
		}
		PrintSuccess(fmt.Sprintf("Lock on %s cleared and published", a.cfg.World))
		return nil
	},
}

func init() {
	unlockCmd.Flags().BoolVar(&unlockYes, "yes", false, "Confirm that nobody is hosting")
}
