package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mcpsentry/pkg/detectors"
	"mcpsentry/pkg/discovery"
	"mcpsentry/pkg/executor"
	"mcpsentry/pkg/logger"
	"mcpsentry/pkg/planner"
	"mcpsentry/pkg/registry"
)

// Config holds the one-shot run options.
type Config struct {
	Target     string
	Categories []string
	Parallel   int
	Timeout    time.Duration
	Output     string
	Verbose    bool
}

// collectSink buffers results for terminal output instead of persisting
// them.
type collectSink struct {
	mu      sync.Mutex
	results []executor.TestResult
}

func (s *collectSink) Write(result executor.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// NewRunCommand creates the run command: a fully deterministic
// template-mode run against one target, no database and no LLM.
func NewRunCommand() *cobra.Command {
	config := &Config{
		Parallel: 4,
		Timeout:  30 * time.Second,
		Output:   "text",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a template-mode pentest against an MCP server",
		Long:  `Run every enabled deterministic check against every matching capability of the target server and print the results. No LLM, no database: identical inputs produce identical plans`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			logLevel := logrus.InfoLevel
			if config.Verbose {
				logLevel = logrus.DebugLevel
			}
			log := logger.NewLogger(logLevel)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var cancelledFlag atomic.Bool
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigChan
				log.WithFields(logger.Fields{"signal": sig.String()}).Info("Received shutdown signal, finishing in-flight checks")
				cancelledFlag.Store(true)
			}()

			categories, err := resolveCategories(config.Categories)
			if err != nil {
				return err
			}

			client, err := discovery.Dial(ctx, config.Target, config.Timeout)
			if err != nil {
				return fmt.Errorf("connect to target: %w", err)
			}
			defer client.Close()

			snapshot, err := discovery.Discover(ctx, client, config.Target)
			if err != nil {
				return err
			}
			log.Info("Discovery complete", logger.Fields{
				"tools":     len(snapshot.Tools),
				"prompts":   len(snapshot.Prompts),
				"resources": len(snapshot.Resources),
			})

			reg := registry.New()
			plan := planner.TemplatePlan(reg, snapshot, categories)
			log.Info("Template plan generated", logger.Fields{"checks": len(plan)})

			sink := &collectSink{}
			exec := executor.New(client, reg, detectors.NewScanner(), sink,
				executor.Config{MaxParallel: config.Parallel, CheckTimeout: config.Timeout},
				func(completed, total int) {
					log.Info("Progress", logger.Fields{"completed": completed, "total": total})
				},
			)

			summary, err := exec.Run(ctx, snapshot, plan, cancelledFlag.Load)
			if err != nil {
				return err
			}

			return printResults(config.Output, summary, sink.results)
		},
	}

	runCmd.Flags().StringVarP(&config.Target, "target", "t", "", "Target MCP server endpoint (required)")
	runCmd.Flags().StringSliceVarP(&config.Categories, "categories", "c", nil, "Categories to run (default: all deterministic categories)")
	runCmd.Flags().IntVarP(&config.Parallel, "parallel", "p", 4, "Maximum concurrent checks")
	runCmd.Flags().DurationVar(&config.Timeout, "timeout", 30*time.Second, "Per-check timeout")
	runCmd.Flags().StringVarP(&config.Output, "output", "o", "text", "Output format: text or yaml")
	runCmd.Flags().BoolVarP(&config.Verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd.MarkFlagRequired("target")

	return runCmd
}

func resolveCategories(names []string) ([]registry.Category, error) {
	if len(names) == 0 {
		var categories []registry.Category
		for _, c := range registry.Categories() {
			if c == registry.CategoryAIRedTeam {
				continue
			}
			categories = append(categories, c)
		}
		return categories, nil
	}

	categories := make([]registry.Category, 0, len(names))
	for _, name := range names {
		if !registry.ValidCategory(name) || name == string(registry.CategoryAIRedTeam) {
			return nil, fmt.Errorf("unknown or unsupported category %q", name)
		}
		categories = append(categories, registry.Category(name))
	}
	return categories, nil
}

type reportEntry struct {
	Category string `yaml:"category"`
	Check    string `yaml:"check"`
	Target   string `yaml:"target"`
	Status   string `yaml:"status"`
	Severity string `yaml:"severity,omitempty"`
	Evidence string `yaml:"evidence,omitempty"`
	Latency  string `yaml:"latency"`
}

type report struct {
	Total   int           `yaml:"total"`
	Passed  int           `yaml:"passed"`
	Failed  int           `yaml:"failed"`
	Errors  int           `yaml:"errors"`
	Results []reportEntry `yaml:"results"`
}

func printResults(format string, summary *executor.Summary, results []executor.TestResult) error {
	switch format {
	case "yaml":
		out := report{
			Total:  summary.Total,
			Passed: summary.Passed,
			Failed: summary.Failed,
			Errors: summary.Errors,
		}
		for _, r := range results {
			out.Results = append(out.Results, reportEntry{
				Category: string(r.Category),
				Check:    r.Check,
				Target:   r.Target.String(),
				Status:   string(r.Status),
				Severity: string(r.Severity),
				Evidence: r.Evidence,
				Latency:  r.Latency.String(),
			})
		}
		encoded, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Print(string(encoded))
		return nil

	case "text":
		for _, r := range results {
			marker := "PASS"
			switch r.Status {
			case executor.StatusFail:
				marker = fmt.Sprintf("FAIL [%s]", r.Severity)
			case executor.StatusError:
				marker = "ERROR"
			}
			fmt.Printf("%-6s %s/%s against %s (%s)\n", marker, r.Category, r.Check, r.Target, r.Latency)
		}
		fmt.Printf("\n%d checks: %d passed, %d failed, %d errors\n",
			summary.Total, summary.Passed, summary.Failed, summary.Errors)
		return nil

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
