package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/firekit/internal/platform"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a firekit.toml in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		path := filepath.Join(wd, platform.ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return errors.New(platform.ConfigFileName + " already exists")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized firekit (%s adapter) in %s\n", cfg.Adapter, wd)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
