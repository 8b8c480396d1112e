package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidJob guards the record invariants the store refuses to persist.
var ErrInvalidJob = errors.New("invalid job")

type JobStore struct {
	db *sql.DB
}

func (o *JobStore) Create(ctx context.Context, j *PrintJob) error {
	if j.Copies < 1 {
		return fmt.Errorf("%w: copies must be at least 1", ErrInvalidJob)
	}
	if j.Priority < 0 {
		return fmt.Errorf("%w: priority cannot be negative", ErrInvalidJob)
	}
	if len(j.Payload) == 0 && j.TemplateRef == "" {
		return fmt.Errorf("%w: either a payload or a template reference is required", ErrInvalidJob)
	}
	result, err := o.db.ExecContext(ctx, InsertJob,
		j.DocumentType, j.PrinterID, j.SubmitterID, j.DataFormat,
		j.Payload, j.TemplateRef, j.TemplateData, j.Copies, j.Priority, j.State)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	j.ID = id
	return nil
}

func (o *JobStore) SetName(ctx context.Context, id int64, name string) error {
	_, err := o.db.ExecContext(ctx, SetJobName, name, id)
	if err != nil {
		return fmt.Errorf("failed to set job name: %w", err)
	}
	return nil
}

func (o *JobStore) GetByID(ctx context.Context, id int64) (*PrintJob, error) {
	row := o.db.QueryRowContext(ctx, GetJobByID, id)
	j := &PrintJob{}
	var submittedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Name, &j.DocumentType, &j.PrinterID, &j.SubmitterID,
		&j.DataFormat, &j.Payload, &j.TemplateRef, &j.TemplateData,
		&j.Copies, &j.Priority, &j.State, &j.RetryCount, &j.ErrorMessage,
		&submittedAt, &completedAt, &j.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if submittedAt.Valid {
		j.SubmittedAt = &submittedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

func (o *JobStore) ListQueuedForPrinter(ctx context.Context, printerID int64) ([]*PrintJob, error) {
	rows, err := o.db.QueryContext(ctx, ListQueuedForPrinter, printerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobStore) List(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	var conditions []string
	var args []interface{}

	if filter.PrinterID > 0 {
		conditions = append(conditions, "printer_id = ?")
		args = append(args, filter.PrinterID)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State)
	}
	if filter.SubmitterID != "" {
		conditions = append(conditions, "submitter_id = ?")
		args = append(args, filter.SubmitterID)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, filter.ToDate)
	}

	query := "SELECT " + jobColumns + " FROM print_jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobStore) CountByState(ctx context.Context, state string) (int64, error) {
	var count int64
	err := o.db.QueryRowContext(ctx, CountJobsByState, state).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func (o *JobStore) CountsByState(ctx context.Context) (map[string]int64, error) {
	rows, err := o.db.QueryContext(ctx, CountJobsGroupedByState)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

// The transition helpers below return false when the guarded UPDATE matched
// no row, meaning a concurrent writer changed the job state first. Callers
// treat that as losing the race, not as an error.

func (o *JobStore) MarkQueued(ctx context.Context, id int64, submittedAt time.Time, annotation string) (bool, error) {
	return o.transition(ctx, MarkJobQueued, submittedAt, annotation, id)
}

func (o *JobStore) MarkPrinting(ctx context.Context, id int64) (bool, error) {
	return o.transition(ctx, MarkJobPrinting, id)
}

func (o *JobStore) MarkCompleted(ctx context.Context, id int64, completedAt time.Time) (bool, error) {
	return o.transition(ctx, MarkJobCompleted, completedAt, id)
}

func (o *JobStore) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	return o.transition(ctx, MarkJobFailed, errMsg, id)
}

// FinalizeFailed stamps a failed job terminal. It only matches failed jobs
// without a completion timestamp, so it fires at most once per job.
func (o *JobStore) FinalizeFailed(ctx context.Context, id int64, completedAt time.Time, errMsg string) (bool, error) {
	return o.transition(ctx, FinalizeJobFailed, completedAt, errMsg, id)
}

func (o *JobStore) RequeueForRetry(ctx context.Context, id int64, errMsg string) (bool, error) {
	return o.transition(ctx, RequeueJobForRetry, errMsg, id)
}

func (o *JobStore) Cancel(ctx context.Context, id int64, completedAt time.Time, reason string) (bool, error) {
	return o.transition(ctx, CancelJob, completedAt, reason, id)
}

// RestoreCancelled returns a cancelled job to the queue. Used to unwind a
// batch merge that lost a constituent to a concurrent dispatcher.
func (o *JobStore) RestoreCancelled(ctx context.Context, id int64) (bool, error) {
	return o.transition(ctx, RestoreCancelledJob, id)
}

func (o *JobStore) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition job state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		j := &PrintJob{}
		var submittedAt, completedAt sql.NullTime
		if err := rows.Scan(
			&j.ID, &j.Name, &j.DocumentType, &j.PrinterID, &j.SubmitterID,
			&j.DataFormat, &j.Payload, &j.TemplateRef, &j.TemplateData,
			&j.Copies, &j.Priority, &j.State, &j.RetryCount, &j.ErrorMessage,
			&submittedAt, &completedAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if submittedAt.Valid {
			j.SubmittedAt = &submittedAt.Time
		}
		if completedAt.Valid {
			j.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
