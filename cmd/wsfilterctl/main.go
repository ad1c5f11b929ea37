// wsfilterctl inspects the inputs a wsfilter deployment depends on: the
// export table of the module to be hooked and the ambient configuration
// file.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wsfilter/wsfilter/internal/config"
	"github.com/wsfilter/wsfilter/internal/pexport"
	"github.com/wsfilter/wsfilter/winsock"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wsfilterctl",
		Short:         "Inspect wsfilter deployment inputs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(exportsCmd(), checkConfigCmd())
	return root
}

func exportsCmd() *cobra.Command {
	var hookedOnly bool

	cmd := &cobra.Command{
		Use:   "exports <image>",
		Short: "List the named exports of a PE image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exports, err := pexport.Exports(args[0])
			if err != nil {
				return err
			}

			hooked := make(map[string]bool)
			for _, name := range winsock.ExportNames() {
				hooked[name] = true
			}

			names := make([]string, 0, len(exports))
			for name := range exports {
				if hookedOnly && !hooked[name] {
					continue
				}
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				mark := ""
				if hooked[name] {
					mark = "  [hooked]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%08x  %s%s\n", exports[name], name, mark)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&hookedOnly, "hooked", false, "only list exports wsfilter intercepts")
	return cmd
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkconfig <file>",
		Short: "Validate a wsfilter configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "target module: %s\npoll interval: %s\nlog level:     %s\nextra rules:   %d\n",
				cfg.TargetModule, cfg.PollInterval, cfg.LogLevel, len(cfg.ExtraRules))
			return nil
		},
	}
}
