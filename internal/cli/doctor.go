package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnwatch/internal/config"
	"github.com/ppiankov/vulnwatch/internal/plan"
	"github.com/ppiankov/vulnwatch/internal/runner"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check which external tool binaries are installed",
	Long: `List every tool in the catalog and whether its binary is on PATH.

Missing binaries do not fail a scan: their runs classify as
tool_not_installed and the pipeline continues. Use doctor to see what
coverage a scan on this machine would actually get.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().String("config", "", "Path to YAML config file (for toolPaths overrides)")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg := config.Defaults()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	r := runner.New()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tBINARY\tSTATUS")

	missing := 0
	for _, spec := range plan.Catalog() {
		bin := binaryFor(spec, cfg)
		var status string
		if path, lookErr := r.LookPath(bin); lookErr != nil {
			status = "missing"
			missing++
		} else {
			status = path
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", spec.Name, bin, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if missing > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d tool(s) missing. Scans still run; missing tools classify as tool_not_installed.\n", missing)
	}
	return nil
}

// binaryFor resolves the executable a spec would invoke, honoring
// toolPaths overrides.
func binaryFor(spec plan.Spec, cfg *config.Config) string {
	if override, ok := cfg.ToolPaths[spec.Name]; ok {
		return override
	}
	return strings.Fields(spec.Command)[0]
}

// requiredBinaries returns the deduplicated executables across the
// catalog, used by the scan preflight.
func requiredBinaries(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, spec := range plan.Catalog() {
		bin := binaryFor(spec, cfg)
		if !seen[bin] {
			seen[bin] = true
			out = append(out, bin)
		}
	}
	return out
}
