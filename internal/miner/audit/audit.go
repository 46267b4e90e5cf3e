// Package audit records completed mining runs in PostgreSQL so operators can
// see what was mined, with which thresholds, and how long it took.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/smartgrocer/basket-analytics-platform/internal/mining"
	"github.com/smartgrocer/basket-analytics-platform/pkg/postgres"
)

// runRetention is how many runs per dataset the pruning loop keeps.
const runRetention = 200

// Run is one row of the mining_runs table.
type Run struct {
	ID           string        `json:"id"`
	Dataset      string        `json:"dataset"`
	Params       mining.Params `json:"params"`
	ItemsetCount int           `json:"itemset_count"`
	RuleCount    int           `json:"rule_count"`
	Levels       int           `json:"levels"`
	DurationMs   int64         `json:"duration_ms"`
	CreatedAt    time.Time     `json:"created_at"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-audit"),
	}
}

// RecordRun persists one completed run. Params are stored as JSONB so the
// table survives parameter additions without migrations.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshaling run params: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO mining_runs (id, dataset, params, itemset_count, rule_count, levels, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Dataset, params, run.ItemsetCount, run.RuleCount, run.Levels, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording mining run: %w", err)
	}

	s.logger.Debug("mining run recorded",
		"dataset", run.Dataset,
		"itemsets", run.ItemsetCount,
		"rules", run.RuleCount,
	)
	return nil
}

// RecentRuns returns the newest runs for a dataset, newest first.
func (s *Store) RecentRuns(ctx context.Context, dataset string, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, dataset, params, itemset_count, rule_count, levels, duration_ms, created_at
		 FROM mining_runs WHERE dataset = $1 ORDER BY created_at DESC LIMIT $2`,
		dataset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mining runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var params []byte
		if err := rows.Scan(&run.ID, &run.Dataset, &params, &run.ItemsetCount,
			&run.RuleCount, &run.Levels, &run.DurationMs, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning mining run: %w", err)
		}
		if err := json.Unmarshal(params, &run.Params); err != nil {
			s.logger.Warn("skipping run with corrupt params", "id", run.ID, "error", err)
			continue
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Prune deletes all but the newest keep runs of each dataset.
func (s *Store) Prune(ctx context.Context, keep int) error {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM mining_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY dataset ORDER BY created_at DESC) AS pos
				FROM mining_runs
			) ranked WHERE pos > $1
		)`,
		keep,
	)
	if err != nil {
		return fmt.Errorf("pruning mining runs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("old mining runs pruned", "deleted", n)
	}
	return nil
}

// StartPruning launches a goroutine that periodically trims each dataset's
// run history down to the retention limit.
func (s *Store) StartPruning(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Prune(ctx, runRetention); err != nil {
					s.logger.Error("run prune failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("run pruning started", "interval", interval, "retention", runRetention)
}
