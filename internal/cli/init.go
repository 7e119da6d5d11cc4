package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tcfw/votem/internal/config"
)

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "write a default config file",
		RunE:  runInit,
	}
)

func init() {
	initCmd.Flags().String("path", "", "where to write the config (default $HOME/.votem/votem.yaml)")
	initCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".votem", "votem.yaml")
	}

	if err := config.WriteDefault(path, force); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)

	return nil
}
