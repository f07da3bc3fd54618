// Command oprema tracks personal game gear: an item store with add-or-merge
// quantities and a local image cache with icon and medium derivatives.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "oprema",
		Short:         "Personal gear inventory with a local image cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.StringVarP(&opts.dbPath, "db", "d", "", "SQLite database path (default: oprema.sqlite3)")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "image cache directory (default: cache)")
	f.StringVarP(&opts.logPath, "log", "l", "", "log file path (default: stdout/stderr only)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		serveCmd(opts),
		addCmd(opts),
		deriveCmd(opts),
		cacheCmd(opts),
		statsCmd(opts),
		passwdCmd(opts),
	)
	return cmd
}
