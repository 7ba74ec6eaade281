package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/worldsync/internal/dataset"
	"github.com/danieljhkim/worldsync/internal/lock"
)

var statusOffline bool

// statusReport is the JSON form of the status command.
type statusReport struct {
	World        string `json:"world"`
	Lock         string `json:"lock"`
	TrackedDir   string `json:"trackedDir"`
	TrackedFiles int    `json:"trackedFiles"`
	LiveDir      string `json:"liveDir"`
	LiveFiles    int    `json:"liveFiles"`

	// InSync is set only when both sides hold a complete world.
	InSync *bool `json:"inSync,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the world and whether your copies match",
	Long: `Pull the shared repository and report the lock state, how many world files the
repository and the game folder hold, and whether the two copies are identical.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if !statusOffline {
			if err := a.repo.Pull(cmd.Context()); err != nil {
				return fmt.Errorf("failed to sync: %w", err)
			}
		}

		state, err := a.locker.Observe()
		if err != nil {
			return err
		}

		tracked, err := dataset.Members(a.fs, a.cfg.TrackedDir(), a.cfg.World)
		if err != nil {
			return err
		}
		live, err := dataset.Members(a.fs, a.cfg.LiveDir, a.cfg.World)
		if err != nil {
			return err
		}

		report := statusReport{
			World:        a.cfg.World,
			Lock:         state.String(),
			TrackedDir:   a.cfg.TrackedDir(),
			TrackedFiles: len(tracked),
			LiveDir:      a.cfg.LiveDir,
			LiveFiles:    len(live),
		}

		if len(tracked) == dataset.MemberCount && len(live) == dataset.MemberCount {
			trackedSum, err := dataset.Digest(a.hasher, tracked)
			if err != nil {
				return err
			}
			liveSum, err := dataset.Digest(a.hasher, live)
			if err != nil {
				return err
			}
			inSync := trackedSum == liveSum
			report.InSync = &inSync
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), report)
		}

		PrintSection(fmt.Sprintf("World %s", report.World))
		PrintLabelValueWithColor("Lock", report.Lock, lockColor(state))
		PrintLabelValue("Repository", fmt.Sprintf("%s (%s)", PrintCount(report.TrackedFiles, "file", "files"), report.TrackedDir))
		PrintLabelValue("Game folder", fmt.Sprintf("%s (%s)", PrintCount(report.LiveFiles, "file", "files"), report.LiveDir))

		switch {
		case report.InSync == nil:
			PrintWarning(fmt.Sprintf("A complete world has %d files; copies cannot be compared", dataset.MemberCount))
		case *report.InSync:
			PrintSuccess("Game folder matches the repository")
		default:
			PrintWarning("Game folder differs from the repository")
		}
		return nil
	},
}

// lockColor picks the color a lock state is shown in.
func lockColor(s lock.State) *color.Color {
	switch s {
	case lock.Free:
		return successColor
	case lock.HeldByMe:
		return warningColor
	default:
		return errorColor
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusOffline, "offline", false, "Skip pulling and report the local working copy")
}
