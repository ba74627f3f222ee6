package cmd

import (
	"fmt"
	"mirrorsync/internal/autostart"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the mirrorsync daemon at login with a systemd user unit",
	Long: "Writes a systemd user unit that runs this binary as the mirrorsync daemon.\n" +
		"Running it again points the unit at the current executable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate mirrorsync binary: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}

		as := autostart.New()
		existed, err := as.IsInstalled()
		if err != nil {
			return err
		}

		if err := as.Install(execPath); err != nil {
			return err
		}

		if existed {
			fmt.Printf("mirrorsync daemon unit updated to run %s\n", execPath)
			return nil
		}
		fmt.Printf("mirrorsync daemon will start at login from %s\n", execPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
