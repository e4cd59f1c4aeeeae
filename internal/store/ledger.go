package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/photovoltex/interop/internal/ir"
	"github.com/photovoltex/interop/internal/registry"
)

// ErrNoRuns is returned when the ledger has no recorded run.
var ErrNoRuns = errors.New("ledger has no recorded runs")

// Run is one recorded generation pass.
type Run struct {
	ID              string
	Seq             int64
	DeclarationHash string
	RootPackage     string
	Module          string
	Namespaces      []NamespaceRecord
}

// NamespaceRecord is one namespace rendered by a run.
type NamespaceRecord struct {
	RunID     string
	Name      string
	Package   string
	Hash      string
	Collected bool
	Commands  []CommandRecord
}

// CommandRecord is one command of a recorded namespace.
type CommandRecord struct {
	Name      string
	Category  ir.Category
	Bootstrap bool
}

// NewRun builds the ledger record of decl. The run ID is a UUIDv7 so IDs
// sort by creation; seq orders runs within the ledger.
func NewRun(decl *ir.Declaration, rootPackage, module string, seq int64) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("new run id: %w", err)
	}
	declHash, err := ir.DeclarationHash(*decl)
	if err != nil {
		return Run{}, fmt.Errorf("hash declaration: %w", err)
	}

	run := Run{
		ID:              id.String(),
		Seq:             seq,
		DeclarationHash: declHash,
		RootPackage:     rootPackage,
		Module:          module,
	}
	for _, ns := range decl.Namespaces {
		hash, err := ir.NamespaceHash(ns)
		if err != nil {
			return Run{}, fmt.Errorf("hash namespace %q: %w", ns.Name, err)
		}
		rec := NamespaceRecord{
			RunID:     run.ID,
			Name:      ns.Name,
			Package:   ns.Package,
			Hash:      hash,
			Collected: ns.Collect,
		}
		for _, cmd := range ns.Commands {
			rec.Commands = append(rec.Commands, CommandRecord{
				Name:      cmd.Name,
				Category:  cmd.Category,
				Bootstrap: cmd.Bootstrap != nil,
			})
		}
		run.Namespaces = append(run.Namespaces, rec)
	}
	return run, nil
}

// NextSeq returns the sequence number the next run should use.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// RecordRun writes run and its namespaces in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, declaration_hash, root_package, module)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Seq, run.DeclarationHash, run.RootPackage, run.Module); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}

	for _, ns := range run.Namespaces {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO namespaces (run_id, name, package, hash, collected)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, ns.Name, ns.Package, ns.Hash, boolInt(ns.Collected)); err != nil {
			return fmt.Errorf("record namespace %q: %w", ns.Name, err)
		}
		for _, cmd := range ns.Commands {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO commands (run_id, namespace, name, category, bootstrap)
				VALUES (?, ?, ?, ?, ?)
			`, run.ID, ns.Name, cmd.Name, string(cmd.Category), boolInt(cmd.Bootstrap)); err != nil {
				return fmt.Errorf("record command %s: %w", ir.Qualify(ns.Name, cmd.Name), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// LatestRun returns the run with the highest seq.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, declaration_hash, root_package, module
		FROM runs
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Seq, &run.DeclarationHash, &run.RootPackage, &run.Module)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, package, hash, collected
		FROM namespaces
		WHERE run_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, run.ID)
	if err != nil {
		return Run{}, fmt.Errorf("query namespaces: %w", err)
	}
	run.Namespaces, err = s.scanNamespaces(ctx, rows)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// Namespaces returns, for every namespace ever recorded, the record of the
// latest run that rendered it, ordered by name.
func (s *Store) Namespaces(ctx context.Context) ([]NamespaceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.run_id, n.name, n.package, n.hash, n.collected
		FROM namespaces n
		JOIN runs r ON r.id = n.run_id
		WHERE r.seq = (
			SELECT MAX(r2.seq)
			FROM namespaces n2
			JOIN runs r2 ON r2.id = n2.run_id
			WHERE n2.name = n.name
		)
		ORDER BY n.name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query namespaces: %w", err)
	}
	return s.scanNamespaces(ctx, rows)
}

// RegistryState folds the latest namespace records into the sets a
// registry restores from: qualified names of collected namespaces, and bare
// names of namespaces that were never collected.
func (s *Store) RegistryState(ctx context.Context) (union, pending []string, err error) {
	namespaces, err := s.Namespaces(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, ns := range namespaces {
		for _, cmd := range ns.Commands {
			if ns.Collected {
				union = append(union, ir.Qualify(ns.Name, cmd.Name))
			} else {
				pending = append(pending, cmd.Name)
			}
		}
	}
	return union, pending, nil
}

// Restore loads the ledger's registry state into reg.
func (s *Store) Restore(ctx context.Context, reg *registry.Registry) error {
	union, pending, err := s.RegistryState(ctx)
	if err != nil {
		return err
	}
	reg.Restore(union, pending)
	return nil
}

// scanNamespaces reads namespace rows, then loads each namespace's commands.
// rows is closed before the command queries run, since the store holds a
// single connection.
func (s *Store) scanNamespaces(ctx context.Context, rows *sql.Rows) ([]NamespaceRecord, error) {
	var out []NamespaceRecord
	for rows.Next() {
		var ns NamespaceRecord
		var collected int
		if err := rows.Scan(&ns.RunID, &ns.Name, &ns.Package, &ns.Hash, &collected); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		ns.Collected = collected == 1
		out = append(out, ns)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate namespaces: %w", err)
	}
	rows.Close()

	for i := range out {
		cmds, err := s.commands(ctx, out[i].RunID, out[i].Name)
		if err != nil {
			return nil, err
		}
		out[i].Commands = cmds
	}
	return out, nil
}

func (s *Store) commands(ctx context.Context, runID, namespace string) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, bootstrap
		FROM commands
		WHERE run_id = ? AND namespace = ?
		ORDER BY name COLLATE BINARY ASC
	`, runID, namespace)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var cmd CommandRecord
		var category string
		var bootstrap int
		if err := rows.Scan(&cmd.Name, &category, &bootstrap); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		cmd.Category = ir.Category(category)
		cmd.Bootstrap = bootstrap == 1
		out = append(out, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
