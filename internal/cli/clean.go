package cli

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

// cleanCommand creates the clean command.
func (c *CLI) cleanCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean MIRROR_DIR",
		Short: "Remove scratch files left by interrupted syncs",
		Long: `Remove the hidden scratch files that an interrupted sync leaves behind.

Only run this while no sync is writing to the mirror.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			files, err := scratchFiles(dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				printInfo(c.Out, "No scratch files")
				return nil
			}

			if dryRun {
				for _, f := range files {
					printFile(c.Out, f)
				}
				printInfo(c.Out, "Would remove %d scratch files", len(files))
				return nil
			}

			removed := 0
			for _, f := range files {
				if err := os.Remove(f); err != nil {
					printError(c.Out, "%s: %v", f, err)
					continue
				}
				removed++
			}
			printSuccess(c.Out, "Removed %d scratch files", removed)
			printDetail(c.Out, "Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "list files without removing them")
	return cmd
}

// scratchFiles lists the scratch files under dir.
func scratchFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isScratchName(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilesystem, err, "scan %s", dir)
	}
	return files, nil
}

// isScratchName reports whether name has the ".<base>.tmp-<random>" form
// used for in-progress downloads.
func isScratchName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-")
}
