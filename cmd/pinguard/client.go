package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/pinguard/internal/apiclient"
	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/settings"
)

func client() *apiclient.Client { return apiclient.New(apiURL) }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := client().Status(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, st)
	}
	fmt.Fprintf(out, "Session:        %s\n", st.SessionID)
	fmt.Fprintf(out, "Tabs:           %d (%d pinned)\n", st.Tabs, st.PinnedTabs)
	fmt.Fprintf(out, "In flight:      %d\n", st.InFlight)
	printSettings(out, st.Settings)
	fmt.Fprintf(out, "Stream clients: %d (%d dropped)\n", st.StreamClients, st.StreamDropped)
	return nil
}

func printSettings(w io.Writer, s settings.Settings) {
	debug := "off"
	if s.DebugMode {
		debug = "on"
	}
	fmt.Fprintf(w, "Debug mode:     %s\n", debug)
	fmt.Fprintf(w, "Link behavior:  %s\n", s.LinkBehavior)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	cur, err := client().Settings(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), cur)
	}
	printSettings(cmd.OutOrStdout(), cur)
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid --debug value %q (want on or off)", s)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	var debug *bool
	var behavior *string
	if cmd.Flags().Changed("debug") {
		v, err := parseOnOff(setDebug)
		if err != nil {
			return err
		}
		debug = &v
	}
	if cmd.Flags().Changed("link-behavior") {
		behavior = &setBehavior
	}
	if debug == nil && behavior == nil {
		return fmt.Errorf("nothing to change: pass --debug and/or --link-behavior")
	}

	cur, err := client().UpdateSettings(cmd.Context(), debug, behavior)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), cur)
	}
	printSettings(cmd.OutOrStdout(), cur)
	return nil
}

func runLogList(cmd *cobra.Command, args []string) error {
	entries, err := client().DebugLogs(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	_, err = cmd.OutOrStdout().Write(settings.FormatEntries(entries))
	return err
}

func runLogExport(cmd *cobra.Command, args []string) error {
	data, name, err := client().ExportDebugLogs(cmd.Context())
	if err != nil {
		return err
	}
	if exportOutput != "" {
		name = exportOutput
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", name, len(data))
	return nil
}

func runLogClear(cmd *cobra.Command, args []string) error {
	if err := client().ClearDebugLogs(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Debug log cleared")
	return nil
}

func runTabs(cmd *cobra.Command, args []string) error {
	tabs, err := client().Tabs(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), tabs)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINDEX\tPINNED\tURL")
	for _, t := range tabs {
		pinned := ""
		if t.Pinned {
			pinned = "yes"
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", t.ID, t.Index, pinned, t.URL)
	}
	return w.Flush()
}

func printPinned(cmd *cobra.Command, entries []guard.PinnedEntry) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pinned tabs")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAB\tCANONICAL URL")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\n", e.TabID, e.URL)
	}
	return w.Flush()
}

func runPinned(cmd *cobra.Command, args []string) error {
	entries, err := client().Pinned(cmd.Context())
	if err != nil {
		return err
	}
	return printPinned(cmd, entries)
}

func runResync(cmd *cobra.Command, args []string) error {
	entries, err := client().Resync(cmd.Context())
	if err != nil {
		return err
	}
	return printPinned(cmd, entries)
}

func runPin(pin bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid tab id %q", args[0])
		}
		c := client()
		var tab guard.Tab
		if pin {
			tab, err = c.Pin(cmd.Context(), id)
		} else {
			tab, err = c.Unpin(cmd.Context(), id)
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), tab)
		}
		state := "unpinned"
		if tab.Pinned {
			state = "pinned"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tab %d %s: %s\n", tab.ID, state, tab.URL)
		return nil
	}
}
