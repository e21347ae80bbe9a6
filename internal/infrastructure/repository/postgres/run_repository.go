package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mjamiv/plan-viz/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *domain.ProcessRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO process_runs (id, document_id, stage, status, started_at, finished_at, output)
VALUES ($1,$2,$3,$4,$5,NULL,NULL)
`,
		run.ID, run.DocumentID, run.Stage, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finalize writes the single terminal transition. The status guard keeps the
// transition one-way: a run that already reached completed or failed is never
// rewritten.
func (r *RunRepository) Finalize(ctx context.Context, run *domain.ProcessRun) error {
	outputJSON, err := json.Marshal(run.Output)
	if err != nil {
		return fmt.Errorf("marshal run output: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE process_runs
SET status = $2, finished_at = $3, output = $4
WHERE id = $1 AND status = 'running'
`, run.ID, string(run.Status), run.FinishedAt, outputJSON)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "finalize run", fmt.Errorf("id=%s not in running state", run.ID))
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.ProcessRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, stage, status, started_at, finished_at, output
FROM process_runs
WHERE id = $1
`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return run, nil
}

func (r *RunRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.ProcessRun, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, stage, status, started_at, finished_at, output
FROM process_runs
WHERE document_id = $1
ORDER BY started_at DESC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

func (r *RunRepository) ListByStageType(ctx context.Context, documentID, stageType string) ([]domain.ProcessRun, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, stage, status, started_at, finished_at, output
FROM process_runs
WHERE document_id = $1 AND (stage = $2 OR stage LIKE $2 || ':%')
ORDER BY started_at DESC
`, documentID, stageType)
	if err != nil {
		return nil, fmt.Errorf("query runs by stage type: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.ProcessRun, error) {
	var run domain.ProcessRun
	var status string
	var finishedAt sql.NullTime
	var outputRaw []byte

	err := row.Scan(&run.ID, &run.DocumentID, &run.Stage, &status, &run.StartedAt, &finishedAt, &outputRaw)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if len(outputRaw) > 0 {
		if err := json.Unmarshal(outputRaw, &run.Output); err != nil {
			return nil, fmt.Errorf("unmarshal run output: %w", err)
		}
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]domain.ProcessRun, error) {
	var runs []domain.ProcessRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
