package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/andresuchdata/stocklens/internal/repository/postgres"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ReportRun is the bookkeeping row for one report computation.
type ReportRun struct {
	ID           string     `db:"id"`
	Policy       string     `db:"policy"`
	StartDate    time.Time  `db:"start_date"`
	EndDate      time.Time  `db:"end_date"`
	RangeMonths  int        `db:"range_months"`
	Merged       bool       `db:"merged"`
	Status       string     `db:"status"`
	ItemCount    int        `db:"item_count"`
	SkuCount     int        `db:"sku_count"`
	ErrorMessage string     `db:"error_message"`
	StartedAt    time.Time  `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// ReportRunRepository records report runs. A nil implementation is valid:
// the engine is stateless between runs and bookkeeping is optional.
type ReportRunRepository interface {
	Create(ctx context.Context, run *ReportRun) error
	Complete(ctx context.Context, id string, itemCount, skuCount int) error
	Fail(ctx context.Context, id string, message string) error
	Get(ctx context.Context, id string) (*ReportRun, error)
}

type reportRunRepository struct {
	db *postgres.DB
}

func NewReportRunRepository(db *postgres.DB) ReportRunRepository {
	return &reportRunRepository{db: db}
}

func (r *reportRunRepository) Create(ctx context.Context, run *ReportRun) error {
	query := `
		INSERT INTO report_runs (
			id, policy, start_date, end_date, range_months,
			merged, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.Policy, run.StartDate, run.EndDate, run.RangeMonths,
		run.Merged, run.Status, run.StartedAt,
	)
	return err
}

func (r *reportRunRepository) Complete(ctx context.Context, id string, itemCount, skuCount int) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE report_runs
			SET status = $1, item_count = $2, sku_count = $3, completed_at = $4
			WHERE id = $5
		`
		_, err := tx.ExecContext(ctx, query, RunStatusCompleted, itemCount, skuCount, time.Now().UTC(), id)
		return err
	})
}

func (r *reportRunRepository) Fail(ctx context.Context, id string, message string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE report_runs
			SET status = $1, error_message = $2, completed_at = $3
			WHERE id = $4
		`
		_, err := tx.ExecContext(ctx, query, RunStatusFailed, message, time.Now().UTC(), id)
		return err
	})
}

func (r *reportRunRepository) Get(ctx context.Context, id string) (*ReportRun, error) {
	query := `
		SELECT id, policy, start_date, end_date, range_months, merged,
		       status, item_count, sku_count, error_message, started_at, completed_at
		FROM report_runs
		WHERE id = $1
	`
	run := &ReportRun{}
	if err := r.db.GetContext(ctx, run, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}
