package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCMD() *cobra.Command {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "archivist",
		Short:         "Lists and downloads messages from a remote archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		fetchCMD(&cfgPath),
		serveCMD(&cfgPath),
		syncCMD(&cfgPath),
		migrateCMD(&cfgPath),
		searchCMD(&cfgPath),
		tokenCMD(&cfgPath),
	)
	return root
}

func main() {
	root := newRootCMD()
	root.SetArgs(rewriteLegacyArgs(os.Args[1:]))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "**Error -", err)
		os.Exit(1)
	}
}
