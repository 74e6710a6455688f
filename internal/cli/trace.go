package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Block string // optional - filter to one block
}

// Trace event types.
const (
	traceCompile = "compile"
	traceLink    = "link"
)

// TraceEvent represents a single event in the compile log timeline.
type TraceEvent struct {
	Seq       int64        `json:"seq"`
	Type      string       `json:"type"` // "compile" or "link"
	Block     string       `json:"block,omitempty"`
	ID        string       `json:"id,omitempty"`
	ScopeID   ir.ScopeID   `json:"scope_id,omitempty"`
	Reference ir.Reference `json:"reference"`
	Parent    string       `json:"parent,omitempty"`
	Child     string       `json:"child,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Block    string             `json:"block,omitempty"`
	Timeline []TraceEvent       `json:"timeline"`
	Live     []ir.CompileRecord `json:"live"`
	Stats    TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the compile log.
type TraceStats struct {
	TotalEvents  int   `json:"total_events"`
	Compilations int   `json:"compilations"`
	Links        int   `json:"links"`
	LiveBlocks   int   `json:"live_blocks"`
	LastSeq      int64 `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the compile log",
		Long: `Show the compile log kept in the database: every compilation and every
child link, in the order they were recorded.

The output includes:
- Timeline: compile and link events ordered by seq
- Live: the latest compilation of each block whose module is still published
- Stats: Summary statistics for the log

Examples:
  blockrender trace --db ./blocks.db
  blockrender trace --db ./blocks.db --block Card
  blockrender trace --db ./blocks.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Block, "block", "", "filter to one block")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.Database == store.MemoryPath {
		return NewExitError(ExitCommandError, "trace needs a database file (set --db or database in config)")
	}

	st, err := openStore(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts.Block)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read compile log", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTrace reads the compile log and merges compilations and links into
// one seq-ordered timeline. A non-empty block keeps its compilations and
// the links it takes part in.
func buildTrace(ctx context.Context, st *store.Store, block string) (TraceResult, error) {
	state, err := st.GetLogState(ctx)
	if err != nil {
		return TraceResult{}, err
	}
	comps, err := st.Compilations(ctx)
	if err != nil {
		return TraceResult{}, err
	}
	links, err := st.Links(ctx)
	if err != nil {
		return TraceResult{}, err
	}

	timeline := make([]TraceEvent, 0, len(comps)+len(links))
	for _, c := range comps {
		if block != "" && c.Block != block {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:       c.Seq,
			Type:      traceCompile,
			Block:     c.Block,
			ID:        c.ID,
			ScopeID:   c.ScopeID,
			Reference: c.Reference,
		})
	}
	for _, l := range links {
		if block != "" && l.Parent != block && l.Child != block {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:       l.Seq,
			Type:      traceLink,
			Parent:    l.Parent,
			Child:     l.Child,
			Reference: l.Reference,
		})
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Seq < timeline[j].Seq
	})

	live := make([]ir.CompileRecord, 0, len(state.Live))
	for _, rec := range state.Live {
		if block == "" || rec.Block == block {
			live = append(live, rec)
		}
	}

	return TraceResult{
		Block:    block,
		Timeline: timeline,
		Live:     live,
		Stats: TraceStats{
			TotalEvents:  len(timeline),
			Compilations: state.Compilations,
			Links:        state.Links,
			LiveBlocks:   len(state.Live),
			LastSeq:      state.LastSeq,
		},
	}, nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	return encodeJSON(cmd.OutOrStdout(), CLIResponse{
		Status: "ok",
		Data:   result,
	})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	if result.Block != "" {
		fmt.Fprintf(w, "Compile log for block: %s\n", result.Block)
	} else {
		fmt.Fprintln(w, "Compile log")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Live ===")
	if len(result.Live) == 0 {
		fmt.Fprintln(w, "  (no live blocks)")
	}
	for _, rec := range result.Live {
		fmt.Fprintf(w, "  %s %s\n", rec.Block, truncateRef(rec.Reference))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Compilations: %d\n", result.Stats.Compilations)
	fmt.Fprintf(w, "  Links:        %d\n", result.Stats.Links)
	fmt.Fprintf(w, "  Live Blocks:  %d\n", result.Stats.LiveBlocks)
	fmt.Fprintf(w, "  Last Seq:     %d\n", result.Stats.LastSeq)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case traceCompile:
		fmt.Fprintf(w, "  [%d] COMPILE %s -> %s\n", event.Seq, event.Block, truncateRef(event.Reference))
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", event.ID)
			if event.ScopeID != "" {
				fmt.Fprintf(w, "       Scope: %s\n", event.ScopeID)
			}
		}
	case traceLink:
		fmt.Fprintf(w, "  [%d] LINK %s -> %s\n", event.Seq, event.Parent, event.Child)
		if verbose {
			fmt.Fprintf(w, "       Ref: %s\n", event.Reference)
		}
	}
}

// truncateRef truncates a long reference for display.
func truncateRef(ref ir.Reference) string {
	s := string(ref)
	if len(s) <= 32 {
		return s
	}
	return s[:16] + "..." + s[len(s)-8:]
}
