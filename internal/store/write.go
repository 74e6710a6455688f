package store

import (
	"context"
	"fmt"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// Publish stores source under a freshly minted reference.
func (s *Store) Publish(ctx context.Context, source string) (ir.Reference, error) {
	ref := s.refs.NewRef()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (reference, source)
		VALUES (?, ?)
	`, string(ref), source)
	if err != nil {
		return "", fmt.Errorf("publish module: %w", err)
	}

	s.logger.Debug("module published", "ref", string(ref), "bytes", len(source))
	return ref, nil
}

// Release revokes ref. The row is kept, with its source cleared, so later
// loads report module.ErrReleased. Unknown references are ignored.
func (s *Store) Release(ctx context.Context, ref ir.Reference) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE modules SET released = 1, source = ''
		WHERE reference = ? AND released = 0
	`, string(ref))
	if err != nil {
		return fmt.Errorf("release module: %w", err)
	}
	return nil
}

// RecordCompile appends a compile record.
// Uses ON CONFLICT DO NOTHING for idempotency - a reference is logged once.
func (s *Store) RecordCompile(ctx context.Context, rec ir.CompileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compilations
		(seq, block, id, scope_id, reference, script, template, block_hash, source_hash, css)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.Seq,
		rec.Block,
		rec.ID,
		string(rec.ScopeID),
		string(rec.Reference),
		string(rec.Script),
		string(rec.Template),
		rec.BlockHash,
		rec.SourceHash,
		rec.CSS,
	)
	if err != nil {
		return fmt.Errorf("record compile: %w", err)
	}
	return nil
}

// RecordLink appends a link record.
// Uses ON CONFLICT(parent, child, reference) DO NOTHING: repeated requests
// substitute the same cached reference and are logged once.
func (s *Store) RecordLink(ctx context.Context, rec ir.LinkRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO link_edges (seq, parent, child, reference)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(parent, child, reference) DO NOTHING
	`, rec.Seq, rec.Parent, rec.Child, string(rec.Reference))
	if err != nil {
		return fmt.Errorf("record link: %w", err)
	}
	return nil
}
