package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/okral/overseer/internal/breaker"
	"github.com/okral/overseer/internal/config"
	"github.com/okral/overseer/internal/dispatch"
	"github.com/okral/overseer/internal/evidence"
	"github.com/okral/overseer/internal/judge"
	"github.com/okral/overseer/internal/logging"
	"github.com/okral/overseer/internal/platform"
	"github.com/okral/overseer/internal/pulse"
	"github.com/okral/overseer/internal/store"
	"github.com/okral/overseer/internal/stuck"
	"github.com/okral/overseer/internal/verdict"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervision loop",
	Long:  "Runs pulse cycles: dispatches queued tasks, evaluates exited workers,\nand performs stuck checks. With --once, runs a single pulse and exits.",
	RunE:  runRun,
}

var (
	runOnce        bool
	runInterval    time.Duration
	runMetricsAddr string
)

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single pulse and exit")
	runCmd.Flags().DurationVar(&runInterval, "interval", 30*time.Second, "time between pulses")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address (e.g. :9090)")
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := mustConfig()
	if err != nil {
		return err
	}

	logger := openLogger()
	defer logger.Close()

	loop, err := buildLoop(s, cfg, logger)
	if err != nil {
		return err
	}

	if runMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(runMetricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		fmt.Printf("%smetrics on %s/metrics%s\n", colorDim, runMetricsAddr, colorReset)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runOnce {
		return loop.Pulse(ctx)
	}

	fmt.Printf("%ssupervising every %s, ctrl-c to stop%s\n", colorDim, runInterval, colorReset)
	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()

	for {
		if err := loop.Pulse(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "pulse: %v\n", err)
		}
		select {
		case <-ctx.Done():
			fmt.Println("\nstopping")
			return nil
		case <-ticker.C:
		}
	}
}

// buildLoop wires the full control loop from config: gatherer, verdict
// engine, breaker, stuck detector and dispatcher.
func buildLoop(s *store.Store, cfg *config.Config, logger *logging.Logger) (*pulse.Loop, error) {
	gh := platform.New(cfg.Platform)

	gatherer := &evidence.Gatherer{
		Proc:     evidence.ProcInspector{},
		Logs:     evidence.FileLogReader{},
		Platform: gh,
	}
	if cfg.Checklist != "" {
		gatherer.Checklist = evidence.MarkdownChecklist{Path: cfg.Checklist}
	}

	// The verdict engine judges with the fast tier; stuck detection is
	// rarer and higher stakes, so it gets the thorough tier when one is
	// configured. A missing judge is tolerated: both components fall
	// back deterministically.
	assessJudge, err := judge.New(cfg, "fast")
	if err != nil {
		logger.Warnf("no fast judge available: %v", err)
	}
	stuckJudge, err := judge.New(cfg, "thorough")
	if err != nil {
		logger.Warnf("no thorough judge available: %v", err)
		stuckJudge = assessJudge
	}

	engine := &verdict.Engine{
		Store:    s,
		Gatherer: gatherer,
		Judge:    assessJudge,
		Log:      logger,
	}

	brk := breaker.New(s, overseerPath("breaker.lock"), cfg.Threshold(), cfg.Cooldown(), gh, logger)

	detector := stuck.New(s, stuckJudge, gh, evidence.TailReader{}, logger, cfg.Milestones(), cfg.Confidence())

	launcher := &dispatch.Launcher{
		Store:  s,
		Worker: cfg.Worker,
		LogDir: overseerPath("logs"),
		Log:    logger,
	}

	return &pulse.Loop{
		Store:    s,
		Launch:   launcher,
		Engine:   engine,
		Breaker:  brk,
		Detector: detector,
		Proc:     evidence.ProcInspector{},
		Review:   gh,
		Log:      logger,
	}, nil
}
