package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ppiankov/vulnwatch/internal/config"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/history"
	"github.com/ppiankov/vulnwatch/internal/metrics"
	"github.com/ppiankov/vulnwatch/internal/monitor"
	"github.com/ppiankov/vulnwatch/internal/report"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/scan"
	"github.com/ppiankov/vulnwatch/internal/target"
	"github.com/ppiankov/vulnwatch/internal/telemetry"
)

const metricsReadHeaderTimeout = 10 * time.Second

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Run a staged assessment against one target",
	Long: `Classify the target, freeze the policy ledger, then walk the staged
execution path: recon, fingerprinting, crawling, and finally payload tools,
each dispatched only when its evidence exists in the discovery cache.

Artifacts land in --output-dir: execution_report.json, findings.csv,
report.html, scan.db, and one raw <tool>.txt per executed tool.

Exit codes:
  0  All findings below MEDIUM (or below --max-severity)
  1  At least one MEDIUM finding
  2  At least one HIGH finding
  3  At least one CRITICAL finding
  4  Internal engine error
  5  Configuration or input error`,
	Example: `  # Scan a domain with defaults
  vulnwatch scan example.com

  # Plain HTTP target, tighter budget
  vulnwatch scan --scheme http --runtime-budget 10m internal.example.com

  # CI pipeline: JSON envelope, fail only on HIGH or worse
  vulnwatch scan --no-tui --output json --max-severity high example.com

  # Quiet mode, exit code only
  vulnwatch scan -q example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("config", "", "Path to YAML config file")
	scanCmd.Flags().String("scheme", "", "Scheme hint for bare hosts: http or https (default from config)")
	scanCmd.Flags().String("output-dir", "", "Directory for scan artifacts (default from config)")
	scanCmd.Flags().Duration("runtime-budget", 0, "Total scan budget (default from config)")
	scanCmd.Flags().Int("concurrency", 0, "Concurrent tools per stage (default from config)")
	scanCmd.Flags().Bool("skip-install", false, "Skip the preflight check for tool binaries on PATH")
	scanCmd.Flags().StringP("output", "o", "", "Output format: json, table (default: table)")
	scanCmd.Flags().BoolP("quiet", "q", false, "Suppress output, exit code only")
	scanCmd.Flags().Bool("no-tui", false, "Disable the live TUI even on a terminal")
	scanCmd.Flags().String("metrics-addr", "", "Serve Prometheus /metrics on this address during the scan")
	scanCmd.Flags().String("max-severity", "medium", "Exit-code threshold: medium, high, or critical")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg := config.Defaults()
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return inputError(fmt.Errorf("loading config: %w", err))
		}
	}

	// Flag overrides on top of the config file.
	scheme, _ := cmd.Flags().GetString("scheme") //nolint:errcheck // flag registered above
	if scheme != "" {
		cfg.Scheme = scheme
	}
	outputDir, _ := cmd.Flags().GetString("output-dir") //nolint:errcheck // flag registered above
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	budget, _ := cmd.Flags().GetDuration("runtime-budget") //nolint:errcheck // flag registered above
	if budget > 0 {
		cfg.RuntimeBudget = budget
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency") //nolint:errcheck // flag registered above
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr") //nolint:errcheck // flag registered above
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return inputError(err)
	}

	maxSevStr, _ := cmd.Flags().GetString("max-severity") //nolint:errcheck // flag registered above
	maxSev, err := parseSeverity(maxSevStr)
	if err != nil {
		return inputError(err)
	}

	outputFlag, _ := cmd.Flags().GetString("output") //nolint:errcheck // flag registered above
	if outputFlag != "" && outputFlag != "json" && outputFlag != "table" {
		return inputError(fmt.Errorf("invalid --output value %q: must be json or table", outputFlag))
	}
	quiet, _ := cmd.Flags().GetBool("quiet")  //nolint:errcheck // flag registered above
	noTUI, _ := cmd.Flags().GetBool("no-tui") //nolint:errcheck // flag registered above

	prof, err := target.FromInput(args[0], cfg.Scheme)
	if err != nil {
		return inputError(err)
	}

	exec := runner.New()
	skipInstall, _ := cmd.Flags().GetBool("skip-install") //nolint:errcheck // flag registered above
	if !skipInstall {
		for _, bin := range requiredBinaries(cfg) {
			if _, lookErr := exec.LookPath(bin); lookErr != nil {
				slog.Warn("tool binary not on PATH, its runs will classify as tool_not_installed", "binary", bin)
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	otelEndpoint, _ := cmd.Flags().GetString("otel-endpoint") //nolint:errcheck // flag registered above
	if otelEndpoint == "" {
		otelEndpoint = cfg.OTELEndpoint
	}
	tracer, tracerShutdown, tracerErr := telemetry.InitTracer(ctx, otelEndpoint, "vulnwatch", version)
	if tracerErr != nil {
		slog.Warn("initializing tracer", "err", tracerErr)
	} else {
		defer tracerShutdown(context.Background()) //nolint:errcheck // best-effort flush
	}

	// Prometheus endpoint for the duration of the scan
	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		collector = metrics.NewCollector(registry)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		}
		go func() {
			slog.Info("metrics listening", "addr", cfg.MetricsAddr)
			if srvErr := srv.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
				slog.Error("metrics server", "err", srvErr)
			}
		}()
		defer srv.Close() //nolint:errcheck // scan is over, connections can drop
	}

	eng := scan.New(prof, cfg, exec, slog.Default(), tracer)

	useTUI := !noTUI && !quiet && outputFlag != "json" && isTerminal(os.Stdout)
	var prog *tea.Program
	eng.OnOutcome = func(o scan.ToolOutcome) {
		if collector != nil {
			collector.ObserveOutcome(o)
		}
		if prog != nil {
			prog.Send(monitor.OutcomeMsg(o))
		}
	}

	slog.Info("starting scan",
		"target", prof.Host, "type", prof.Type,
		"budget", cfg.RuntimeBudget, "concurrency", cfg.Concurrency)

	start := time.Now()
	var rep *scan.Report
	var runErr error
	if useTUI {
		prog = tea.NewProgram(monitor.NewModel(prof.Host))
		done := make(chan struct{})
		go func() {
			rep, runErr = eng.Run(ctx)
			if runErr != nil {
				prog.Quit()
			} else {
				prog.Send(monitor.DoneMsg{Report: rep})
			}
			close(done)
		}()
		if _, tuiErr := prog.Run(); tuiErr != nil {
			slog.Warn("tui terminated", "err", tuiErr)
		}
		stop() // a quit key also cancels a still-running scan
		<-done
	} else {
		rep, runErr = eng.Run(ctx)
	}
	if runErr != nil {
		return fmt.Errorf("running scan: %w", runErr)
	}
	duration := time.Since(start)

	if collector != nil {
		collector.Update(rep, duration)
	}
	writeArtifacts(cfg.OutputDir, rep)

	exitCode := monitor.ExitCode(rep, maxSev)

	if !quiet {
		switch outputFlag {
		case "json":
			if err := monitor.WriteJSON(os.Stdout, rep, exitCode); err != nil {
				return fmt.Errorf("writing JSON output: %w", err)
			}
		default:
			if !useTUI {
				fmt.Print(monitor.PlainText(rep))
			}
		}
	}

	if exitCode != 0 {
		os.Exit(exitCode) //nolint:gocritic // exitAfterDefer: defers cover the zero-exit path; findings demand a nonzero code
	}
	return nil
}

// writeArtifacts persists the report renderings and the history row.
// Artifact failures are logged, never fatal: the scan itself succeeded.
func writeArtifacts(dir string, rep *scan.Report) {
	if path, err := rep.WriteJSON(dir); err != nil {
		slog.Warn("writing execution report", "err", err)
	} else {
		slog.Info("execution report written", "path", path)
	}

	csvPath := filepath.Join(dir, "findings.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		slog.Warn("creating findings CSV", "err", err)
	} else {
		if err := report.WriteCSV(f, rep.Findings.Items); err != nil {
			slog.Warn("writing findings CSV", "err", err)
		}
		f.Close() //nolint:errcheck // read-side artifact
	}

	if html, err := report.Generate(rep); err != nil {
		slog.Warn("rendering HTML report", "err", err)
	} else if err := os.WriteFile(filepath.Join(dir, "report.html"), html, 0o644); err != nil {
		slog.Warn("writing HTML report", "err", err)
	}

	store, err := history.Open(filepath.Join(dir, "scan.db"))
	if err != nil {
		slog.Warn("opening scan history", "err", err)
		return
	}
	defer store.Close() //nolint:errcheck // best-effort cleanup
	if err := store.Save(rep); err != nil {
		slog.Warn("saving scan history", "err", err)
	}
}

// inputError prints the error and exits with the input-error code.
// Config and target problems must not surface as engine failures.
func inputError(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(monitor.ExitInputError)
	return nil
}

func parseSeverity(s string) (findings.Severity, error) {
	switch strings.ToLower(s) {
	case "", "medium":
		return findings.SeverityMedium, nil
	case "high":
		return findings.SeverityHigh, nil
	case "critical":
		return findings.SeverityCritical, nil
	default:
		return "", fmt.Errorf("invalid --max-severity %q: must be medium, high, or critical", s)
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
