package cli

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/overseer/internal/metrics"
	"github.com/mrz1836/overseer/internal/signal"
)

// AddRunCommand adds the run command to the root command.
func AddRunCommand(parent *cobra.Command) {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop",
		Long: `Run the control loop until interrupted.

Each iteration polls the operator inbox, asks the planner for a decision,
admits the planning spend, runs the proposed commands through the safety
policy and applies any requested self-modification.

The first Ctrl+C finishes the iteration in progress and exits. A second one
cancels outstanding calls immediately.

Examples:
  overseer run          # Loop until interrupted
  overseer run --once   # Run one iteration and print its record
  overseer run -o json --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoop(cmd.Context(), cmd, cmd.OutOrStdout(), os.Stderr, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single iteration and exit")
	parent.AddCommand(cmd)
}

// runLoop runs the scheduler. Alerts go to alerts; the --once record goes to w.
func runLoop(ctx context.Context, cmd *cobra.Command, w, alerts io.Writer, once bool) error {
	a, err := openApp(ctx, cmd, alerts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	planner, err := a.planner()
	if err != nil {
		return err
	}
	prom := metrics.NewPrometheus()
	s, err := a.newScheduler(planner, a.commandSource(), prom)
	if err != nil {
		return err
	}

	ctx = a.logger.WithContext(ctx)
	if once {
		rec, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		if outputFormat(cmd) == OutputJSON {
			return writeJSON(w, rec)
		}
		printIteration(w, rec)
		return nil
	}

	h := signal.NewHandler(ctx, s.Stop)
	defer h.Stop()

	// The metrics server lives exactly as long as the loop.
	serveCtx, stopServing := context.WithCancel(h.Context())
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		defer stopServing()
		return s.Run(gctx)
	})
	if addr := a.cfg.Metrics.Listen; addr != "" {
		g.Go(func() error {
			serveMetrics(gctx, addr, a.logger, prom.Serve)
			return nil
		})
	}
	return g.Wait()
}

// serveMetrics runs serve until ctx ends. A failure such as a port already in
// use is logged and the loop keeps running without metrics.
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger, serve func(context.Context, string, zerolog.Logger) error) {
	if err := serve(ctx, addr, logger); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed, continuing without it")
	}
}
