package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/domusnext/eval/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// driverName is the sqlite3 driver with per-connection pragmas applied.
const driverName = "sqlite3_eval"

var registerDriver sync.Once

// connectionPragmas run on every new pooled connection. Cascading deletes
// rely on foreign_keys, which SQLite scopes to a single connection.
var connectionPragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

func register() {
	registerDriver.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				for _, pragma := range connectionPragmas {
					if _, err := conn.Exec(pragma, nil); err != nil {
						return fmt.Errorf("failed to apply %q: %w", pragma, err)
					}
				}
				return nil
			},
		})
	})
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	register()
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS evaluation_versions (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			notes TEXT,
			agent_base_url TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_contexts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			params_json TEXT NOT NULL DEFAULT '{}',
			headers_json TEXT NOT NULL DEFAULT '{}',
			order_index INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_cases (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			user_message_json TEXT NOT NULL,
			assistant_message_json TEXT,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			order_index INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (context_id) REFERENCES evaluation_contexts(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_cases_context ON evaluation_cases(context_id, order_index)`,
		`CREATE TABLE IF NOT EXISTS evaluation_results (
			id TEXT PRIMARY KEY,
			version_id TEXT NOT NULL,
			context_id TEXT NOT NULL,
			case_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			request_payload TEXT,
			response_json TEXT,
			latency_ms INTEGER,
			started_at INTEGER,
			completed_at INTEGER,
			error TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (version_id) REFERENCES evaluation_versions(id) ON DELETE CASCADE,
			FOREIGN KEY (context_id) REFERENCES evaluation_contexts(id) ON DELETE CASCADE,
			FOREIGN KEY (case_id) REFERENCES evaluation_cases(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_results_run_case ON evaluation_results(run_id, case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluation_results_version_created ON evaluation_results(version_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("evaluation_versions", "created_by", "ALTER TABLE evaluation_versions ADD COLUMN created_by TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateVersion creates a new version.
func (s *SQLiteStore) CreateVersion(ctx context.Context, version *domain.Version) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluation_versions (id, label, notes, agent_base_url, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.Label, nullStringPtr(version.Notes), nullStringPtr(version.AgentBaseURL), nullStringPtr(version.CreatedBy),
		version.CreatedAt.UnixMilli(), version.UpdatedAt.UnixMilli())
	return err
}

const versionColumns = `id, label, notes, agent_base_url, created_by, created_at, updated_at`

func scanVersion(row interface{ Scan(...any) error }) (*domain.Version, error) {
	var v domain.Version
	var notes, agentBaseURL, createdBy sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&v.ID, &v.Label, &notes, &agentBaseURL, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	v.Notes = stringPtr(notes)
	v.AgentBaseURL = stringPtr(agentBaseURL)
	v.CreatedBy = stringPtr(createdBy)
	v.CreatedAt = time.UnixMilli(createdAt)
	v.UpdatedAt = time.UnixMilli(updatedAt)
	return &v, nil
}

// GetVersion retrieves a version by ID.
func (s *SQLiteStore) GetVersion(ctx context.Context, versionID string) (*domain.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM evaluation_versions WHERE id = ?`, versionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions lists all versions, newest first.
func (s *SQLiteStore) ListVersions(ctx context.Context) ([]domain.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM evaluation_versions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []domain.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

// UpdateVersion writes the fields present in patch and refreshes updated_at.
func (s *SQLiteStore) UpdateVersion(ctx context.Context, versionID string, patch domain.VersionPatch, updatedAt time.Time) error {
	var sets assignments
	sets.required("label", patch.Label)
	sets.nullable("notes", patch.Notes)
	sets.nullable("agent_base_url", patch.AgentBaseURL)
	return s.update(ctx, "evaluation_versions", versionID, sets, updatedAt)
}

// DeleteVersion deletes a version; its results cascade.
func (s *SQLiteStore) DeleteVersion(ctx context.Context, versionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM evaluation_versions WHERE id = ?`, versionID)
	return err
}

// CreateContext creates a new context.
func (s *SQLiteStore) CreateContext(ctx context.Context, record *ContextRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluation_contexts (id, name, description, params_json, headers_json, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Name, nullStringPtr(record.Description), record.ParamsJSON, record.HeadersJSON,
		record.OrderIndex, record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli())
	return err
}

const contextColumns = `id, name, description, params_json, headers_json, order_index, created_at, updated_at`

func scanContext(row interface{ Scan(...any) error }) (*ContextRecord, error) {
	var c ContextRecord
	var description sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.Name, &description, &c.ParamsJSON, &c.HeadersJSON, &c.OrderIndex, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Description = stringPtr(description)
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

// GetContext retrieves a context by ID.
func (s *SQLiteStore) GetContext(ctx context.Context, contextID string) (*ContextRecord, error) {
	c, err := scanContext(s.db.QueryRowContext(ctx,
		`SELECT `+contextColumns+` FROM evaluation_contexts WHERE id = ?`, contextID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListContexts lists all contexts in display order.
func (s *SQLiteStore) ListContexts(ctx context.Context) ([]ContextRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contextColumns+` FROM evaluation_contexts ORDER BY order_index ASC, created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contexts []ContextRecord
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, *c)
	}
	return contexts, rows.Err()
}

// UpdateContext writes the fields present in update and refreshes updated_at.
func (s *SQLiteStore) UpdateContext(ctx context.Context, contextID string, update ContextUpdate, updatedAt time.Time) error {
	var sets assignments
	sets.required("name", update.Name)
	sets.nullable("description", update.Description)
	sets.required("params_json", update.ParamsJSON)
	sets.required("headers_json", update.HeadersJSON)
	return s.update(ctx, "evaluation_contexts", contextID, sets, updatedAt)
}

// DeleteContext deletes a context; its cases and their results cascade.
func (s *SQLiteStore) DeleteContext(ctx context.Context, contextID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM evaluation_contexts WHERE id = ?`, contextID)
	return err
}

// CreateCase creates a new case.
func (s *SQLiteStore) CreateCase(ctx context.Context, record *CaseRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluation_cases (id, context_id, title, description, user_message_json, assistant_message_json, metadata_json, order_index, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ContextID, record.Title, nullStringPtr(record.Description), record.UserMessageJSON,
		nullStringPtr(record.AssistantMessageJSON), record.MetadataJSON, record.OrderIndex,
		record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli())
	return err
}

const caseColumns = `id, context_id, title, description, user_message_json, assistant_message_json, metadata_json, order_index, created_at, updated_at`

func scanCase(row interface{ Scan(...any) error }) (*CaseRecord, error) {
	var c CaseRecord
	var description, assistant sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.ContextID, &c.Title, &description, &c.UserMessageJSON, &assistant,
		&c.MetadataJSON, &c.OrderIndex, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Description = stringPtr(description)
	c.AssistantMessageJSON = stringPtr(assistant)
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}

// GetCase retrieves a case by ID.
func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (*CaseRecord, error) {
	c, err := scanCase(s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM evaluation_cases WHERE id = ?`, caseID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCasesByContexts lists the cases of the given contexts in display order.
func (s *SQLiteStore) ListCasesByContexts(ctx context.Context, contextIDs []string) ([]CaseRecord, error) {
	if len(contextIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + caseColumns + ` FROM evaluation_cases WHERE context_id IN (` + placeholders(len(contextIDs)) + `)
		ORDER BY order_index ASC, created_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(contextIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// UpdateCase writes the fields present in update and refreshes updated_at.
func (s *SQLiteStore) UpdateCase(ctx context.Context, caseID string, update CaseUpdate, updatedAt time.Time) error {
	var sets assignments
	sets.required("title", update.Title)
	sets.nullable("description", update.Description)
	sets.required("user_message_json", update.UserMessageJSON)
	sets.nullable("assistant_message_json", update.AssistantMessageJSON)
	sets.required("metadata_json", update.MetadataJSON)
	return s.update(ctx, "evaluation_cases", caseID, sets, updatedAt)
}

// DeleteCase deletes a case; its results cascade.
func (s *SQLiteStore) DeleteCase(ctx context.Context, caseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM evaluation_cases WHERE id = ?`, caseID)
	return err
}

const resultColumns = `id, version_id, context_id, case_id, run_id, status, request_payload, response_json, latency_ms, started_at, completed_at, error, created_at`

func scanResult(row interface{ Scan(...any) error }) (*domain.Result, error) {
	var r domain.Result
	var requestPayload, responseJSON, errText sql.NullString
	var latency, startedAt, completedAt sql.NullInt64
	var createdAt int64
	if err := row.Scan(&r.ID, &r.VersionID, &r.ContextID, &r.CaseID, &r.RunID, &r.Status,
		&requestPayload, &responseJSON, &latency, &startedAt, &completedAt, &errText, &createdAt); err != nil {
		return nil, err
	}
	if requestPayload.Valid {
		r.RequestPayload = json.RawMessage(requestPayload.String)
	}
	if responseJSON.Valid {
		r.ResponseJSON = json.RawMessage(responseJSON.String)
	}
	if latency.Valid {
		r.LatencyMs = &latency.Int64
	}
	r.StartedAt = timePtr(startedAt)
	r.CompletedAt = timePtr(completedAt)
	r.Error = stringPtr(errText)
	r.CreatedAt = time.UnixMilli(createdAt)
	return &r, nil
}

func (s *SQLiteStore) queryResults(ctx context.Context, query string, args ...any) ([]domain.Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// ListResults lists results of the given versions and cases, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, versionIDs, caseIDs []string) ([]domain.Result, error) {
	if len(versionIDs) == 0 || len(caseIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + resultColumns + ` FROM evaluation_results
		WHERE version_id IN (` + placeholders(len(versionIDs)) + `) AND case_id IN (` + placeholders(len(caseIDs)) + `)
		ORDER BY started_at DESC, created_at DESC, rowid DESC`
	args := append(stringArgs(versionIDs), stringArgs(caseIDs)...)
	return s.queryResults(ctx, query, args...)
}

// ListResultsByRun lists the results written by one run.
func (s *SQLiteStore) ListResultsByRun(ctx context.Context, runID string) ([]domain.Result, error) {
	return s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM evaluation_results WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
}

// ReplaceResults deletes prior results of the (version, case) pairs in results
// and inserts the new rows in the same transaction.
func (s *SQLiteStore) ReplaceResults(ctx context.Context, versionID string, results []domain.Result) error {
	if len(results) == 0 {
		return nil
	}

	caseIDs := make([]string, 0, len(results))
	for _, r := range results {
		caseIDs = append(caseIDs, r.CaseID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := append([]any{versionID}, stringArgs(caseIDs)...)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM evaluation_results WHERE version_id = ? AND case_id IN (`+placeholders(len(caseIDs))+`)`,
		args...); err != nil {
		return fmt.Errorf("failed to delete previous results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO evaluation_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.VersionID, r.ContextID, r.CaseID, r.RunID, r.Status,
			nullStringBytes(r.RequestPayload), nullStringBytes(r.ResponseJSON),
			nullInt64Ptr(r.LatencyMs), nullMillis(r.StartedAt), nullMillis(r.CompletedAt),
			nullStringPtr(r.Error), r.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert result %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// UpdateResult overwrites the execution fields of a result.
func (s *SQLiteStore) UpdateResult(ctx context.Context, result *domain.Result) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE evaluation_results SET status = ?, response_json = ?, latency_ms = ?, started_at = ?, completed_at = ?, error = ? WHERE id = ?`,
		result.Status, nullStringBytes(result.ResponseJSON), nullInt64Ptr(result.LatencyMs),
		nullMillis(result.StartedAt), nullMillis(result.CompletedAt), nullStringPtr(result.Error), result.ID)
	return err
}

// assignments collects "column = ?" pairs for a partial update.
type assignments struct {
	columns []string
	args    []any
}

// required sets a NOT NULL column; an explicit null leaves it untouched.
func (a *assignments) required(column string, f domain.Field[string]) {
	if !f.HasValue() {
		return
	}
	a.columns = append(a.columns, column+" = ?")
	a.args = append(a.args, f.Value)
}

// nullable sets a nullable column; an explicit null clears it.
func (a *assignments) nullable(column string, f domain.Field[string]) {
	if !f.Set {
		return
	}
	a.columns = append(a.columns, column+" = ?")
	if f.Null {
		a.args = append(a.args, nil)
		return
	}
	a.args = append(a.args, f.Value)
}

func (s *SQLiteStore) update(ctx context.Context, table, id string, sets assignments, updatedAt time.Time) error {
	sets.columns = append(sets.columns, "updated_at = ?")
	sets.args = append(sets.args, updatedAt.UnixMilli(), id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(sets.columns, ", "))
	_, err := s.db.ExecContext(ctx, query, sets.args...)
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := time.UnixMilli(ni.Int64)
	return &t
}
