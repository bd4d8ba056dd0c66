package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/treecep/internal/compiler"
	"github.com/roach88/treecep/internal/engine"
	"github.com/roach88/treecep/internal/store"
	"github.com/roach88/treecep/internal/stream"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	EngineFlags

	Database    string
	RedisAddr   string
	RedisStream string
	Output      string
	Follow      bool
	Idle        time.Duration
	StartSeq    int64
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <patterns> [events.jsonl]",
		Short: "Evaluate patterns over an event stream",
		Long: `Evaluate CUE patterns over a JSON Lines event stream.

Events are read from the file argument or stdin, one JSON object per line
with "type", "timestamp" and "attrs". Every match is written as a JSON line
to stdout (or --out), and optionally recorded in a SQLite database and
appended to a Redis stream.

With --follow the events file is tailed until --idle passes without new
lines or the command is interrupted.

Example:
  treecep run ./patterns events.jsonl
  treecep run ./patterns --db ./matches.db --strategy topology < events.jsonl
  treecep run ./patterns feed.jsonl --follow --idle 30s
  treecep run ./patterns part2.jsonl --start-seq 5000
  treecep run ./patterns feed.jsonl --mode parallel --partition-key symbol`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eventsPath := ""
			if len(args) == 2 {
				eventsPath = args[1]
			}
			return runEngine(opts, args[0], eventsPath, cmd)
		},
	}

	opts.registerPlanning(cmd)
	opts.registerDispatch(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run and its matches in this SQLite database")
	cmd.Flags().StringVar(&opts.RedisAddr, "redis", "", "append matches to a Redis stream at this address")
	cmd.Flags().StringVar(&opts.RedisStream, "redis-stream", "", "Redis stream key")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "write matches to this file instead of stdout")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "tail the events file")
	cmd.Flags().DurationVar(&opts.Idle, "idle", 0, "stop following after this long without events (0 = never)")
	cmd.Flags().Int64Var(&opts.StartSeq, "start-seq", 0, "number unstamped events after this seq")

	return cmd
}

func runEngine(opts *RunOptions, patternsPath, eventsPath string, cmd *cobra.Command) error {
	cfg := opts.Config
	flags := opts.EngineFlags.resolve(cmd, cfg)
	if !cmd.Flags().Changed("db") {
		opts.Database = cfg.Database
	}
	if !cmd.Flags().Changed("redis") {
		opts.RedisAddr = cfg.RedisAddr
	}
	if !cmd.Flags().Changed("redis-stream") {
		opts.RedisStream = cfg.RedisStream
	}
	if !cmd.Flags().Changed("idle") {
		opts.Idle = cfg.FollowIdle
	}
	if opts.Follow && eventsPath == "" {
		return NewExitError(ExitCommandError, "--follow requires an events file")
	}
	if opts.StartSeq < 0 {
		return NewExitError(ExitCommandError, "--start-seq must not be negative")
	}

	slog.Info("compiling patterns", "path", patternsPath)
	defs, err := loadDefinitions(patternsPath)
	if err != nil {
		return err
	}
	slog.Info("patterns compiled", "patterns", len(defs))

	params, err := flags.params(defs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine settings", err)
	}
	params.StartSeq = opts.StartSeq
	manager, err := engine.NewManager(params)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build evaluation trees", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	src, closeSrc, err := openSource(opts, eventsPath, cmd)
	if err != nil {
		return err
	}
	defer closeSrc()

	sink, cleanup, err := openSinks(ctx, opts, flags, params, defs, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("evaluation starting", "mode", params.Mode, "strategy", flags.strategyName(params.Strategy))
	if err := manager.Eval(ctx, src, sink); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Info("evaluation stopped", "reason", err)
			return nil
		}
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}

	if seq, ok := manager.(*engine.SequentialManager); ok {
		stats := seq.Mechanism().Stats()
		slog.Info("evaluation finished",
			"events", stats.Events,
			"out_of_order", stats.OutOfOrder,
			"matches", stats.Matches,
		)
	}
	return nil
}

// openSource returns the event source for eventsPath, or stdin when it is
// empty.
func openSource(opts *RunOptions, eventsPath string, cmd *cobra.Command) (stream.Source, func(), error) {
	if eventsPath == "" {
		return stream.NewJSONLSource(cmd.InOrStdin()), func() {}, nil
	}

	if opts.Follow {
		src, err := stream.Follow(eventsPath, stream.WithIdleTimeout(opts.Idle))
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to follow events file", err)
		}
		return src, func() { _ = src.Close() }, nil
	}

	f, err := os.Open(eventsPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open events file", err)
	}
	return stream.NewJSONLSource(f), func() { _ = f.Close() }, nil
}

// openSinks builds the JSONL sink plus the optional store and Redis sinks.
// The returned cleanup releases resources the sinks do not own.
func openSinks(
	ctx context.Context,
	opts *RunOptions,
	flags EngineFlags,
	params engine.Params,
	defs []*compiler.Definition,
	cmd *cobra.Command,
) (stream.Sink, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var out io.Writer = cmd.OutOrStdout()
	if opts.Output != "" && opts.Output != "-" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		closers = append(closers, func() { _ = f.Close() })
		out = f
	}
	sinks := stream.Tee{stream.NewJSONLSink(out)}

	if opts.Database != "" {
		slog.Info("opening database", "path", opts.Database)
		st, err := store.Open(opts.Database)
		if err != nil {
			cleanup()
			return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		closers = append(closers, func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		})

		names := make([]string, len(defs))
		for i, def := range defs {
			names[i] = def.Pattern.Name
		}
		run, err := st.BeginRun(ctx, store.Run{
			Mode:     string(params.Mode),
			Strategy: flags.strategyName(params.Strategy),
			Patterns: names,
		})
		if err != nil {
			cleanup()
			return nil, nil, WrapExitError(ExitCommandError, "failed to record run", err)
		}
		slog.Info("run recorded", "run", run.ID)
		sinks = append(sinks, st.Sink(run.ID))
	}

	if opts.RedisAddr != "" {
		rcfg := stream.DefaultRedisConfig(opts.RedisAddr)
		if opts.RedisStream != "" {
			rcfg.Stream = opts.RedisStream
		}
		rs, err := stream.NewRedisSink(rcfg)
		if err != nil {
			cleanup()
			return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to connect to redis at %s", opts.RedisAddr), err)
		}
		sinks = append(sinks, rs)
	}

	if len(sinks) == 1 {
		return sinks[0], cleanup, nil
	}
	return sinks, cleanup, nil
}
