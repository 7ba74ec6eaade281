package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/worldsync/internal/session"
)

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"play"},
	Short:   "Claim the world, play, and publish it when you are done",
	Long: `Pull the shared repository, claim the lock, and hand the tracked world to the game.

worldsync then waits. Once you have shut the game down, press Ctrl+C: the world is
copied back into the repository, the lock is released and everything is pushed.

If someone else is already hosting, worldsync says so and exits without changing
anything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		// Further interrupts after the first are swallowed so finalize can finish.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		orch := session.New(a.cfg, a.repo, a.fs, a.backups, a.locker, a.logger, consoleReporter{})
		res, err := orch.Run(ctx)
		if err != nil {
			if errors.Is(err, session.ErrHandOff) && res.BackupDir != "" {
				PrintWarning(fmt.Sprintf("Your previous world is in %s", res.BackupDir))
			}
			if a.locker.Held() && !errors.Is(err, session.ErrPublish) {
				PrintWarning("The lock is still held. Once the problem is fixed, run: worldsync unlock --yes")
			}
			return err
		}

		if res.Outcome == session.Contended {
			PrintInfo("Try again once they have finished.")
			return nil
		}

		PrintSuccess(fmt.Sprintf("%s published. Thanks for hosting!", a.cfg.World))
		return nil
	},
}

// consoleReporter prints session progress for the operator.
type consoleReporter struct{}

var phaseTitles = map[session.Phase]string{
	session.Syncing:    "Updating",
	session.Acquiring:  "Claiming the world",
	session.HandingOff: "Handing the world to the game",
	session.Active:     "Ready",
	session.Committing: "Saving the world",
	session.Releasing:  "Releasing the lock",
	session.Publishing: "Publishing",
}

func (consoleReporter) PhaseChanged(p session.Phase) {
	if title, ok := phaseTitles[p]; ok {
		PrintSection(title)
	}
}

func (consoleReporter) Info(msg string) { PrintInfo(msg) }
func (consoleReporter) Warn(msg string) { PrintWarning(msg) }
