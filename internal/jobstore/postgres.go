package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novahealth/nova/pkg/transcript"
)

// Schema is the SQL DDL for the transcription_jobs table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcription_jobs (
    id         UUID        PRIMARY KEY,
    filename   TEXT        NOT NULL,
    audio_path TEXT        NOT NULL,
    status     TEXT        NOT NULL DEFAULT 'pending',
    error      TEXT        NOT NULL DEFAULT '',
    result     JSONB,
    decisions  JSONB       NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcription_jobs_status ON transcription_jobs(status);
CREATE INDEX IF NOT EXISTS idx_transcription_jobs_created ON transcription_jobs(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. The merged
// result and the judge decisions are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect establishes a connection pool to the PostgreSQL database at dsn,
// verifies connectivity, and runs the schema migration.
func Connect(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("jobstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("jobstore: ping: %w", err)
	}
	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

// Migrate executes the [Schema] DDL against the database, creating the
// transcription_jobs table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("jobstore: migrate: %w", err)
	}
	return nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, job *Job) error {
	const query = `
		INSERT INTO transcription_jobs (id, filename, audio_path, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	status := job.Status
	if status == "" {
		status = StatusPending
	}
	err := s.db.QueryRow(ctx, query, job.ID, job.Filename, job.AudioPath, status).
		Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("jobstore: job %s already exists", job.ID)
		}
		return fmt.Errorf("jobstore: create: %w", err)
	}
	job.Status = status
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	const query = `
		SELECT id, filename, audio_path, status, error, result, decisions, created_at, updated_at
		FROM transcription_jobs
		WHERE id = $1`

	var (
		job           Job
		resultJSON    []byte
		decisionsJSON []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.Filename, &job.AudioPath, &job.Status, &job.Error,
		&resultJSON, &decisionsJSON, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("jobstore: get %s: %w", id, err)
	}

	if err := unmarshalPayloads(&job, resultJSON, decisionsJSON); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing implements [Store].
func (s *PostgresStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, StatusProcessing, "")
}

// Complete implements [Store].
func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, result *transcript.Result, decisions []*transcript.Decision) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jobstore: marshal result: %w", err)
	}
	decisionsJSON, err := json.Marshal(emptyDecisions(decisions))
	if err != nil {
		return fmt.Errorf("jobstore: marshal decisions: %w", err)
	}

	const query = `
		UPDATE transcription_jobs
		SET status = $2, result = $3, decisions = $4, error = '', updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, StatusCompleted, resultJSON, decisionsJSON)
	if err != nil {
		return fmt.Errorf("jobstore: complete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail implements [Store].
func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, cause string) error {
	return s.setStatus(ctx, id, StatusFailed, cause)
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `
		SELECT id, filename, audio_path, status, error, result, decisions, created_at, updated_at
		FROM transcription_jobs
		ORDER BY created_at DESC`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.Query(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = s.db.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: list: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			job           Job
			resultJSON    []byte
			decisionsJSON []byte
		)
		if err := rows.Scan(
			&job.ID, &job.Filename, &job.AudioPath, &job.Status, &job.Error,
			&resultJSON, &decisionsJSON, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("jobstore: list scan: %w", err)
		}
		if err := unmarshalPayloads(&job, resultJSON, decisionsJSON); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: list: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) setStatus(ctx context.Context, id uuid.UUID, status Status, cause string) error {
	const query = `
		UPDATE transcription_jobs
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, status, cause)
	if err != nil {
		return fmt.Errorf("jobstore: set status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// unmarshalPayloads deserialises the JSONB columns into the corresponding
// [Job] fields. A NULL result column leaves Job.Result nil.
func unmarshalPayloads(job *Job, result, decisions []byte) error {
	if len(result) > 0 {
		job.Result = &transcript.Result{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return fmt.Errorf("jobstore: unmarshal result: %w", err)
		}
	}
	if len(decisions) > 0 {
		if err := json.Unmarshal(decisions, &job.Decisions); err != nil {
			return fmt.Errorf("jobstore: unmarshal decisions: %w", err)
		}
	}
	return nil
}

// emptyDecisions returns d if non-nil, otherwise an empty non-nil slice. This
// ensures JSON marshalling produces "[]" instead of "null".
func emptyDecisions(d []*transcript.Decision) []*transcript.Decision {
	if d == nil {
		return []*transcript.Decision{}
	}
	return d
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
