package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnwatch/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored scans from a scan.db",
	Long: `Read a scan.db written by a previous run and print scan summaries,
or the per-scan outcomes of a single tool with --tool.`,
	Example: `  # Summaries of the last scans in the default output dir
  vulnwatch history --db ./vulnwatch-out/scan.db

  # How sqlmap has fared across stored scans
  vulnwatch history --db ./vulnwatch-out/scan.db --tool sqlmap`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("db", "./vulnwatch-out/scan.db", "Path to the scan.db SQLite file")
	historyCmd.Flags().Int("limit", 20, "Maximum rows to print")
	historyCmd.Flags().String("tool", "", "Show outcome history for one tool instead of scan summaries")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	dbPath, err := cmd.Flags().GetString("db")
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")  //nolint:errcheck // flag registered above
	tool, _ := cmd.Flags().GetString("tool") //nolint:errcheck // flag registered above

	store, err := history.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-only session

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	if tool != "" {
		outcomes, err := store.ToolHistory(tool, limit)
		if err != nil {
			return fmt.Errorf("querying tool history: %w", err)
		}
		if len(outcomes) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no stored runs for %q\n", tool)
			return nil
		}
		fmt.Fprintln(w, "TOOL\tSTAGE\tVERDICT\tOUTCOME\tEXIT\tDURATION_MS\tFINDINGS")
		for i := range outcomes {
			o := &outcomes[i]
			status := string(o.Class)
			if status == "" {
				status = o.Reason
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%d\n",
				o.Tool, o.Stage, o.Verdict, status, o.ExitCode, o.DurationMS, o.FindingsCount)
		}
		return w.Flush()
	}

	summaries, err := store.List(limit)
	if err != nil {
		return fmt.Errorf("querying scans: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no stored scans")
		return nil
	}
	fmt.Fprintln(w, "SCAN_ID\tTARGET\tSTARTED\tFINDINGS\tCRIT\tHIGH\tEXECUTED\tBLOCKED")
	for i := range summaries {
		sm := &summaries[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			sm.ScanID, sm.Target, sm.StartedAt.Format("2006-01-02 15:04"),
			sm.FindingsCount, sm.CritCount, sm.HighCount, sm.ToolsExecuted, sm.ToolsBlocked)
	}
	return w.Flush()
}
