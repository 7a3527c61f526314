// Package main is the CLI entry point for pinguard.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var Version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pinguard",
	Short: "Keeps pinned browser tabs on their page",
	Long: `pinguard attaches to a Chromium browser over the DevTools protocol and keeps
pinned tabs on their canonical page. Link clicks that would leave a pinned
tab open in a new tab next to it instead.

Run the daemon with "pinguard run". The other commands talk to a running
daemon over its HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the guard daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change guard settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Long:  `Only the flags given are changed. Example: pinguard settings set --link-behavior all-links`,
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect the debug log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print debug log entries",
	Args:  cobra.NoArgs,
	RunE:  runLogList,
}

var logExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Save the debug log to a text file",
	Args:  cobra.NoArgs,
	RunE:  runLogExport,
}

var logClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all debug log entries",
	Args:  cobra.NoArgs,
	RunE:  runLogClear,
}

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List browser tabs",
	Args:  cobra.NoArgs,
	RunE:  runTabs,
}

var pinnedCmd = &cobra.Command{
	Use:   "pinned",
	Short: "List guarded tabs and their canonical URLs",
	Args:  cobra.NoArgs,
	RunE:  runPinned,
}

var pinCmd = &cobra.Command{
	Use:   "pin <tab-id>",
	Short: "Pin a tab",
	Args:  cobra.ExactArgs(1),
	RunE:  runPin(true),
}

var unpinCmd = &cobra.Command{
	Use:   "unpin <tab-id>",
	Short: "Unpin a tab",
	Args:  cobra.ExactArgs(1),
	RunE:  runPin(false),
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Rebuild the registry from the browser's pinned tabs",
	Args:  cobra.NoArgs,
	RunE:  runResync,
}

var (
	apiURL       string
	jsonOutput   bool
	setDebug     string
	setBehavior  string
	exportOutput string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("PINGUARD_API", "http://127.0.0.1:8190"), "Daemon API base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	settingsSetCmd.Flags().StringVar(&setDebug, "debug", "", "Debug mode (on/off)")
	settingsSetCmd.Flags().StringVar(&setBehavior, "link-behavior", "", "different-domains or all-links")
	logExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: name suggested by the daemon)")

	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	logCmd.AddCommand(logListCmd, logExportCmd, logClearCmd)
	rootCmd.AddCommand(runCmd, statusCmd, settingsCmd, logCmd, tabsCmd, pinnedCmd, pinCmd, unpinCmd, resyncCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
