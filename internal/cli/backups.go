package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups of previous worlds, newest first",
	Long: `List the folders worldsync moved previous worlds into before handing a newer
one to the game. worldsync never deletes them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		dirs, err := a.backups.List(a.cfg.World, a.cfg.LiveDir)
		if err != nil {
			return err
		}

		if jsonOutput {
			if dirs == nil {
				dirs = []string{}
			}
			return outputJSON(cmd.OutOrStdout(), dirs)
		}

		PrintSection("Backups of " + a.cfg.World)
		if len(dirs) == 0 {
			PrintEmptyState("No backups yet")
			return nil
		}

		names := make([]string, len(dirs))
		for i, d := range dirs {
			names[i] = filepath.Base(d)
		}
		PrintNumberedList(names, 1)
		PrintInfo("")
		PrintLabelValue("Location", a.cfg.LiveDir)
		return nil
	},
}
