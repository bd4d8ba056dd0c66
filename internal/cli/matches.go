package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/treecep/internal/ir"
	"github.com/roach88/treecep/internal/store"
	"github.com/roach88/treecep/internal/stream"
)

// MatchesOptions holds flags for the matches command.
type MatchesOptions struct {
	*RootOptions
	Database string
	RunID    string
	Pattern  string
	Limit    int
	ListRuns bool
}

// RunSummary is a recorded run as listed by the matches command.
type RunSummary struct {
	ID         string   `json:"id"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at,omitempty"`
	Mode       string   `json:"mode"`
	Strategy   string   `json:"strategy"`
	Patterns   []string `json:"patterns"`
	Matches    int      `json:"matches"`
}

// NewMatchesCommand creates the matches command.
func NewMatchesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Query matches recorded by run --db",
		Long: `Query the runs and matches recorded in a SQLite database.

Without --run the most recent run is read. Text output is one JSON match
per line, the same format run writes.

Example:
  treecep matches --db ./matches.db --runs
  treecep matches --db ./matches.db --pattern rise --limit 10
  treecep matches --db ./matches.db --run 0192... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatches(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to read (default: latest)")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", "", "only matches of this pattern")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of matches (0 = all)")
	cmd.Flags().BoolVar(&opts.ListRuns, "runs", false, "list runs instead of matches")

	return cmd
}

func runMatches(opts *MatchesOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.Config.Database
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	// Opening would create an empty database.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", dbPath))
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.ListRuns {
		return listRuns(ctx, st, formatter)
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no such run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	formatter.VerboseLog("Reading matches of run %s", run.ID)

	matches, err := st.ReadMatches(ctx, run.ID, store.MatchFilter{Pattern: opts.Pattern, Limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read matches", err)
	}

	if formatter.IsJSON() {
		if matches == nil {
			matches = []ir.Match{}
		}
		return formatter.encode(CLIResponse{Status: "ok", Data: matches, RunID: run.ID})
	}

	sink := stream.NewJSONLSink(formatter.Writer)
	for _, m := range matches {
		if err := sink.Emit(ctx, m); err != nil {
			return err
		}
	}
	return sink.Close()
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		count, err := st.CountMatches(ctx, r.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count matches", err)
		}
		s := RunSummary{
			ID:        r.ID,
			StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
			Mode:      r.Mode,
			Strategy:  r.Strategy,
			Patterns:  r.Patterns,
			Matches:   count,
		}
		if r.Finished() {
			s.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
		}
		summaries = append(summaries, s)
	}

	if formatter.IsJSON() {
		return formatter.Success(summaries)
	}
	if len(summaries) == 0 {
		formatter.Printf("No runs recorded.\n")
		return nil
	}
	for _, s := range summaries {
		state := "finished"
		if s.FinishedAt == "" {
			state = "open"
		}
		formatter.Printf("%s  %s  %s/%s  %d matches  %s  %v\n",
			s.ID, s.StartedAt, s.Mode, s.Strategy, s.Matches, state, s.Patterns)
	}
	return nil
}
