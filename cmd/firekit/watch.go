package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/firekit"
	fklifecycle "github.com/aretw0/firekit/pkg/adapters/lifecycle"
	"github.com/aretw0/firekit/pkg/core"
)

var watchCmd = &cobra.Command{
	Use:   "watch [collection]",
	Short: "Print change events until interrupted",
	Long: `Watch prints one line per created, modified or deleted document.
With the fs adapter, changes made by other processes are reported too.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, cfg, err := openStore(ctx, cmd, firekit.WithWatch(true))
		if err != nil {
			return err
		}
		defer closeStore(store)

		watchable, ok := store.(core.Watchable)
		if !ok {
			return fmt.Errorf("the %s adapter does not support watch", cfg.Adapter)
		}

		var c core.Collection
		if len(args) == 1 {
			c = core.Collection(args[0])
		}
		src := fklifecycle.NewSource(watchable, c)
		if err := src.Start(ctx); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for e := range src.Events() {
			fmt.Fprintln(out, e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
