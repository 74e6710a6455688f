package store

import (
	"context"
	"fmt"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// LogState summarizes the compile log.
type LogState struct {
	// Live holds the latest compilation per block whose module has not been
	// released, ordered by seq.
	Live []ir.CompileRecord

	// LastSeq is the highest seq in the log. An engine sharing this store
	// continues numbering from it with engine.NewClockAt.
	LastSeq int64

	Compilations int
	Links        int
}

// GetLogState reads the compile log summary shown by the trace command.
func (s *Store) GetLogState(ctx context.Context) (LogState, error) {
	var state LogState

	live, err := s.queryCompilations(ctx, `
		SELECT c.seq, c.block, c.id, c.scope_id, c.reference, c.script, c.template, c.block_hash, c.source_hash, c.css
		FROM compilations c
		JOIN modules m ON m.reference = c.reference AND m.released = 0
		WHERE c.seq = (SELECT MAX(c2.seq) FROM compilations c2 WHERE c2.block = c.block)
		ORDER BY c.seq ASC, c.reference COLLATE BINARY ASC
	`)
	if err != nil {
		return state, fmt.Errorf("get log state: %w", err)
	}
	state.Live = live

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM compilations),
			(SELECT COUNT(*) FROM link_edges),
			MAX(
				COALESCE((SELECT MAX(seq) FROM compilations), 0),
				COALESCE((SELECT MAX(seq) FROM link_edges), 0)
			)
	`).Scan(&state.Compilations, &state.Links, &state.LastSeq)
	if err != nil {
		return state, fmt.Errorf("get log state: %w", err)
	}

	return state, nil
}
