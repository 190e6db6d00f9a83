package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/bryanchriswhite/navbar-watcher/internal/autohide"
	"github.com/bryanchriswhite/navbar-watcher/internal/bar"
	"github.com/bryanchriswhite/navbar-watcher/internal/overlay"
	"github.com/bryanchriswhite/navbar-watcher/internal/window"
	"github.com/bryanchriswhite/navbar-watcher/internal/workspace"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the watcher would decide right now",
	Long: `Take one snapshot from the compositor and print the active workspaces,
their window counts, open overlays and whether the bar should be shown.

Nothing is started or signalled.`,
	Example: `  # Show status as a table (default)
  navbar-watcher status

  # Show status as JSON
  navbar-watcher status --format json`,
	RunE: runStatus,
}

var statusFormat string

// statusReport is the one-shot view printed by the status command
type statusReport struct {
	Backend     string          `json:"backend"`
	Workspace   workspace.State `json:"workspace"`
	Overlays    map[string]bool `json:"overlays"`
	OverlayOpen bool            `json:"overlay_open"`
	Desired     bool            `json:"desired"`
	BarPID      int             `json:"bar_pid,omitempty"`
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "table", "output format (table or json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := cmd.Context()
	state := window.NewManager(backend).Initial(ctx)

	probes := make([]overlay.Probe, 0, len(cfg.Overlays.Names)+1)
	for _, name := range cfg.Overlays.Names {
		probes = append(probes, overlay.NewLayerProbe(backend, name))
	}
	if cfg.Overlays.DBus.Enabled {
		dbusProbe := overlay.NewDBusProbe(cfg.Overlays.DBus)
		defer dbusProbe.Close()
		probes = append(probes, dbusProbe)
	}

	report := statusReport{
		Backend:   backend.Name(),
		Workspace: state,
		Overlays:  make(map[string]bool, len(probes)),
	}
	for _, p := range probes {
		open := p.Open(ctx)
		report.Overlays[p.Name()] = open
		report.OverlayOpen = report.OverlayOpen || open
	}
	report.Desired = autohide.Desired(state.HasWindows, report.OverlayOpen)
	if pid, ok := bar.NewOS().Find(cfg.Bar.Name); ok {
		report.BarPID = pid
	}

	switch statusFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "table":
		return printStatusTable(report, cfg.Bar.Name)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", statusFormat)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func printStatusTable(r statusReport, barName string) error {
	fmt.Printf("Backend:      %s\n", r.Backend)
	fmt.Printf("Has windows:  %s\n", yesNo(r.Workspace.HasWindows))
	fmt.Printf("Overlay open: %s\n", yesNo(r.OverlayOpen))
	fmt.Printf("Show bar:     %s\n", yesNo(r.Desired))
	if r.BarPID > 0 {
		fmt.Printf("Bar:          %s (pid %d)\n", barName, r.BarPID)
	} else {
		fmt.Printf("Bar:          %s (not running)\n", barName)
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "WORKSPACE\tWINDOWS\tACTIVE")
	fmt.Fprintln(w, "---------\t-------\t------")

	ids := make([]workspace.ID, 0, len(r.Workspace.Counts))
	for id := range r.Workspace.Counts {
		ids = append(ids, id)
	}
	for _, id := range r.Workspace.Active {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	for _, id := range ids {
		active := slices.Contains(r.Workspace.Active, id)
		fmt.Fprintf(w, "%s\t%d\t%s\n", id, r.Workspace.Counts[id], yesNo(active))
	}
	return nil
}
