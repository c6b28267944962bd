// Package scan orchestrates a full assessment: it walks the staged
// execution path, consults the decision layer before every dispatch,
// runs tools under the concurrency ceiling, and folds parser output
// back into the cache and the findings registry.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/vulnwatch/internal/cache"
	"github.com/ppiankov/vulnwatch/internal/config"
	"github.com/ppiankov/vulnwatch/internal/decision"
	"github.com/ppiankov/vulnwatch/internal/findings"
	"github.com/ppiankov/vulnwatch/internal/ledger"
	"github.com/ppiankov/vulnwatch/internal/parsers"
	"github.com/ppiankov/vulnwatch/internal/plan"
	"github.com/ppiankov/vulnwatch/internal/runner"
	"github.com/ppiankov/vulnwatch/internal/target"
)

// Executor runs one external tool. Satisfied by runner.Runner; stubbed
// in tests.
type Executor interface {
	Run(ctx context.Context, tool, command string, timeout time.Duration) runner.Result
}

// ToolOutcome is one row of the append-only execution log.
type ToolOutcome struct {
	Tool          string               `json:"tool"`
	Category      plan.Category        `json:"category"`
	Stage         int                  `json:"stage"`
	Verdict       decision.Verdict     `json:"verdict"`
	Reason        string               `json:"reason"`
	Command       string               `json:"command,omitempty"`
	Class         runner.OutcomeClass  `json:"outcome,omitempty"`
	FailureReason runner.FailureReason `json:"failure_reason,omitempty"`
	ExitCode      int                  `json:"exit_code"`
	StartedAt     time.Time            `json:"started_at,omitempty"`
	FinishedAt    time.Time            `json:"finished_at,omitempty"`
	DurationMS    int64                `json:"duration_ms"`
	FindingsCount int                  `json:"findings_count"`
	StdoutBytes   int                  `json:"stdout_bytes"`
	StderrBytes   int                  `json:"stderr_bytes"`
	Truncated     bool                 `json:"truncated,omitempty"`
	ParseFailed   bool                 `json:"parse_failed,omitempty"`
}

// Engine drives one scan from profile to report.
type Engine struct {
	profile *target.Profile
	cfg     *config.Config
	led     *ledger.Ledger
	items   []plan.Item
	cache   *cache.Cache
	reg     *findings.Registry
	exec    Executor
	log     *slog.Logger
	tracer  trace.Tracer

	// OnOutcome, when set, observes every appended outcome (TUI,
	// metrics). Called from worker goroutines.
	OnOutcome func(ToolOutcome)

	mu       sync.Mutex
	outcomes []ToolOutcome
	portscan sync.Mutex // at most one portscan-category process
	epFile   sync.Once
	epPath   string
	epErr    error

	startedAt time.Time
	deadline  time.Time
}

// New wires an engine for the profile. The ledger is built and frozen
// here; nothing downstream may change policy.
func New(p *target.Profile, cfg *config.Config, exec Executor, log *slog.Logger, tracer trace.Tracer) *Engine {
	led := ledger.Build(p)
	led.Finalize()

	seed := []cache.Capability{}
	if p.IsWebTarget {
		seed = append(seed, cache.CapWebTarget)
	}
	if p.IsHTTPS {
		seed = append(seed, cache.CapHTTPS)
	}
	c := cache.New(seed...)
	for _, ip := range p.ResolvedIPs {
		c.AddResolvedIP(ip)
	}

	if log == nil {
		log = slog.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("vulnwatch")
	}

	e := &Engine{
		profile: p,
		cfg:     cfg,
		led:     led,
		items:   plan.ForProfile(p),
		cache:   c,
		exec:    exec,
		log:     log,
		tracer:  tracer,
	}
	e.reg = findings.NewRegistry(findings.WithCrawlerVerifier(e.crawlerSaw))
	return e
}

// Ledger exposes the frozen policy for reporting.
func (e *Engine) Ledger() *ledger.Ledger { return e.led }

// Plan exposes the staged execution path.
func (e *Engine) Plan() []plan.Item { return e.items }

// Cache exposes the discovery cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Findings exposes the registry.
func (e *Engine) Findings() *findings.Registry { return e.reg }

func (e *Engine) crawlerSaw(endpoint string) bool {
	snap := e.cache.Snapshot()
	for _, ep := range snap.Endpoints {
		if ep == endpoint {
			return true
		}
	}
	return false
}

// Run executes the staged plan and returns the final report. Stages run
// in order; tools within a stage run concurrently up to the ceiling.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	e.startedAt = time.Now().UTC()
	e.deadline = e.startedAt.Add(e.cfg.RuntimeBudget)

	ctx, cancel := context.WithDeadline(ctx, e.deadline)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "scan",
		trace.WithAttributes(
			attribute.String("target.host", e.profile.Host),
			attribute.String("target.type", string(e.profile.Type)),
		))
	defer span.End()

	maxStage := 0
	for _, it := range e.items {
		if it.Stage > maxStage {
			maxStage = it.Stage
		}
	}

	for stage := 0; stage <= maxStage; stage++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Concurrency)
		for _, it := range e.items {
			if it.Stage != stage {
				continue
			}
			item := it
			g.Go(func() error {
				e.dispatch(gctx, item)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if time.Now().After(e.deadline) {
			e.log.Warn("runtime budget exhausted", "stage", stage)
		}
	}

	report := e.buildReport()
	return report, nil
}

// dispatch evaluates the decision with a fresh snapshot and runs the
// tool if allowed. Verdicts are final: a blocked tool is not retried.
func (e *Engine) dispatch(ctx context.Context, item plan.Item) {
	if item.Category == plan.CategoryPortScan {
		e.portscan.Lock()
		defer e.portscan.Unlock()
	}

	snap := e.cache.Snapshot()
	remaining := time.Until(e.deadline)
	verdict, reason := decision.ShouldRun(item.Spec, e.led, snap, remaining)

	out := ToolOutcome{
		Tool:     item.Name,
		Category: item.Category,
		Stage:    item.Stage,
		Verdict:  verdict,
		Reason:   reason,
	}
	if verdict != decision.Allow {
		e.log.Info("tool not dispatched", "tool", item.Name, "verdict", verdict, "reason", reason)
		e.append(out)
		return
	}

	command, err := e.expand(item.Spec, snap)
	if err != nil {
		out.Verdict = decision.Skip
		out.Reason = err.Error()
		e.append(out)
		return
	}
	out.Command = command

	timeout := item.Timeout
	if override, ok := e.cfg.Timeouts[item.Name]; ok {
		timeout = override
	}
	if remaining < timeout {
		timeout = remaining
	}

	runCtx, span := e.tracer.Start(ctx, "tool."+item.Name,
		trace.WithAttributes(attribute.String("tool.category", string(item.Category))))
	defer span.End()

	e.log.Info("running tool", "tool", item.Name, "timeout", timeout)
	res := e.exec.Run(runCtx, item.Name, command, timeout)

	out.ExitCode = res.ExitCode
	out.StartedAt = res.StartedAt
	out.FinishedAt = res.FinishedAt
	out.DurationMS = res.FinishedAt.Sub(res.StartedAt).Milliseconds()
	out.StdoutBytes = len(res.Stdout)
	out.StderrBytes = len(res.Stderr)
	out.Truncated = res.StdoutTruncated || res.StderrTruncated

	e.writeRaw(item.Name, command, res)

	// Classification needs the findings count, which needs the parse.
	count := 0
	provisional, _ := runner.Classify(res, 0, item.Streams)
	if runner.Parseable(provisional) {
		if p, ok := parsers.Lookup(item.Name); ok {
			delta, found, perr := p.Parse(res.Stdout)
			if perr != nil {
				out.ParseFailed = true
				e.log.Warn("parse failed, output quarantined", "tool", item.Name, "err", perr)
			} else {
				delta.Apply(e.cache)
				for _, f := range found {
					f.CreatedAt = res.FinishedAt
					e.reg.Add(f)
				}
				count = len(found)
			}
		}
	}
	out.Class, out.FailureReason = runner.Classify(res, count, item.Streams)
	out.FindingsCount = count

	span.SetAttributes(
		attribute.String("tool.outcome", string(out.Class)),
		attribute.Int("tool.findings", count),
	)
	e.log.Info("tool finished",
		"tool", item.Name, "outcome", out.Class, "exit_code", out.ExitCode,
		"findings", count, "duration_ms", out.DurationMS)
	e.append(out)
}

func (e *Engine) append(out ToolOutcome) {
	e.mu.Lock()
	e.outcomes = append(e.outcomes, out)
	e.mu.Unlock()
	if e.OnOutcome != nil {
		e.OnOutcome(out)
	}
}

// Outcomes returns a copy of the execution log so far.
func (e *Engine) Outcomes() []ToolOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ToolOutcome(nil), e.outcomes...)
}

// expand substitutes the command template placeholders.
func (e *Engine) expand(spec plan.Spec, snap cache.Snapshot) (string, error) {
	cmd := spec.Command
	if strings.Contains(cmd, "{endpoints_file}") {
		path, err := e.endpointsFile(snap)
		if err != nil {
			return "", fmt.Errorf("endpoints file: %w", err)
		}
		cmd = strings.ReplaceAll(cmd, "{endpoints_file}", path)
	}
	cmd = strings.ReplaceAll(cmd, "{target}", e.profile.Host)
	cmd = strings.ReplaceAll(cmd, "{url}", e.profile.BaseURL())
	cmd = strings.ReplaceAll(cmd, "{base_domain}", e.profile.BaseDomain)
	cmd = strings.ReplaceAll(cmd, "{wordlist}", e.cfg.Wordlist)
	cmd = strings.ReplaceAll(cmd, "{output_dir}", e.cfg.OutputDir)

	if override, ok := e.cfg.ToolPaths[spec.Name]; ok {
		fields := strings.Fields(cmd)
		fields[0] = override
		cmd = strings.Join(fields, " ")
	}
	return cmd, nil
}

// endpointsFile materializes the discovered endpoints for payload tools
// that read a seed file. Written once, at first use, after the crawler
// stage has run.
func (e *Engine) endpointsFile(snap cache.Snapshot) (string, error) {
	e.epFile.Do(func() {
		eps := snap.LiveEndpoints
		if len(eps) == 0 {
			eps = snap.Endpoints
		}
		path := filepath.Join(e.cfg.OutputDir, "endpoints.txt")
		e.epErr = os.WriteFile(path, []byte(strings.Join(eps, "\n")+"\n"), 0o644)
		if e.epErr == nil {
			e.epPath = path
		}
	})
	return e.epPath, e.epErr
}

// writeRaw persists the tool's combined output as <tool>.txt, headed
// by the invocation context so the artifact is self-describing.
func (e *Engine) writeRaw(tool, command string, res runner.Result) {
	path := filepath.Join(e.cfg.OutputDir, tool+".txt")
	var b strings.Builder
	fmt.Fprintf(&b, "# tool: %s\n# command: %s\n# target: %s\n# started_at: %s\n# exit_code: %d\n\n",
		tool, command, e.profile.Host, res.StartedAt.Format(time.RFC3339), res.ExitCode)
	b.Write(res.Stdout)
	if len(res.Stderr) > 0 {
		b.WriteString("\n--- stderr ---\n")
		b.Write(res.Stderr)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		e.log.Warn("writing raw output", "tool", tool, "err", err)
	}
}
