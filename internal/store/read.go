package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
)

// Load links ref and every reference it imports from the modules table.
func (s *Store) Load(ctx context.Context, ref ir.Reference) (*module.Module, error) {
	return module.Link(ctx, ref, s.fetch)
}

// Source returns the published text behind ref.
// Returns module.ErrNotFound or module.ErrReleased when there is none.
func (s *Store) Source(ctx context.Context, ref ir.Reference) (string, error) {
	return s.fetch(ctx, ref)
}

func (s *Store) fetch(ctx context.Context, ref ir.Reference) (string, error) {
	var (
		source   string
		released bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source, released FROM modules WHERE reference = ?
	`, string(ref)).Scan(&source, &released)
	if errors.Is(err, sql.ErrNoRows) {
		return "", module.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read module: %w", err)
	}
	if released {
		return "", module.ErrReleased
	}
	return source, nil
}

// CountModules returns the number of live (unreleased) modules.
func (s *Store) CountModules(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM modules WHERE released = 0
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count modules: %w", err)
	}
	return n, nil
}

// Compilations returns the compile log ordered by seq.
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) Compilations(ctx context.Context) ([]ir.CompileRecord, error) {
	return s.queryCompilations(ctx, `
		SELECT seq, block, id, scope_id, reference, script, template, block_hash, source_hash, css
		FROM compilations
		ORDER BY seq ASC, reference COLLATE BINARY ASC
	`)
}

// BlockCompilations returns the compile records of one block ordered by seq.
func (s *Store) BlockCompilations(ctx context.Context, block string) ([]ir.CompileRecord, error) {
	return s.queryCompilations(ctx, `
		SELECT seq, block, id, scope_id, reference, script, template, block_hash, source_hash, css
		FROM compilations
		WHERE block = ?
		ORDER BY seq ASC, reference COLLATE BINARY ASC
	`, block)
}

func (s *Store) queryCompilations(ctx context.Context, query string, args ...any) ([]ir.CompileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query compilations: %w", err)
	}
	defer rows.Close()

	records := []ir.CompileRecord{}
	for rows.Next() {
		rec, err := scanCompilation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compilations: %w", err)
	}
	return records, nil
}

// Links returns the link log ordered by seq.
// Returns an empty slice (not nil) when the log is empty.
func (s *Store) Links(ctx context.Context) ([]ir.LinkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, parent, child, reference
		FROM link_edges
		ORDER BY seq ASC, parent COLLATE BINARY ASC, child COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []ir.LinkRecord{}
	for rows.Next() {
		var (
			rec ir.LinkRecord
			ref string
		)
		if err := rows.Scan(&rec.Seq, &rec.Parent, &rec.Child, &ref); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		rec.Reference = ir.Reference(ref)
		links = append(links, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCompilation(row scanner) (ir.CompileRecord, error) {
	var (
		rec                               ir.CompileRecord
		scopeID, ref, script, templateRef string
	)
	err := row.Scan(&rec.Seq, &rec.Block, &rec.ID, &scopeID, &ref, &script, &templateRef, &rec.BlockHash, &rec.SourceHash, &rec.CSS)
	if err != nil {
		return ir.CompileRecord{}, fmt.Errorf("scan compilation: %w", err)
	}
	rec.ScopeID = ir.ScopeID(scopeID)
	rec.Reference = ir.Reference(ref)
	rec.Script = ir.Reference(script)
	rec.Template = ir.Reference(templateRef)
	return rec, nil
}
