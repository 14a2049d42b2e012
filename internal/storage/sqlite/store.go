package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tracker/internal/board"
	"tracker/internal/models"
)

// Store wraps access to the SQLite database and exposes high level helpers.
// Tasks are plain rows keyed by a stable id; the version column is the
// optimistic-lock token checked on every write path.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ board.Store = (*Store)(nil)

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            message TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            project TEXT NOT NULL,
            responsible TEXT NOT NULL DEFAULT '',
            priority INTEGER NOT NULL DEFAULT 999,
            version INTEGER NOT NULL DEFAULT 0,
            modified_by TEXT NOT NULL DEFAULT '',
            modified_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_status ON tasks(project, status);`,
		`CREATE TABLE IF NOT EXISTS employees (
            user_id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'user'
        );`,
		`CREATE TABLE IF NOT EXISTS access_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            user_id INTEGER NOT NULL,
            username TEXT NOT NULL DEFAULT '',
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT ''
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const taskColumns = `id, name, message, status, project, responsible, priority, version, modified_by, modified_at`

// LoadAll retrieves every task row. Rows without a name are skipped, the
// same way blank spreadsheet rows were in the system this replaces.
func (s *Store) LoadAll(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE name != '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by row id.
func (s *Store) GetTask(ctx context.Context, rowID string) (models.Task, error) {
	id, err := parseRowID(rowID)
	if err != nil {
		return models.Task{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, models.ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// ConditionalUpdate writes a task's editable fields if and only if the row
// still holds expectedVersion, bumping the version by one. Returns the new
// version, ErrVersionConflict when another writer got there first, or
// ErrTaskNotFound when the row is gone.
func (s *Store) ConditionalUpdate(ctx context.Context, rowID string, edit board.TaskEdit, expectedVersion int64, modifiedBy string) (int64, error) {
	id, err := parseRowID(rowID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(edit.Name) == "" {
		return 0, &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	res, err := s.db.ExecContext(ctx, `UPDATE tasks
        SET name = ?, message = ?, project = ?, responsible = ?, version = version + 1, modified_by = ?, modified_at = ?
        WHERE id = ? AND version = ?`,
		strings.TrimSpace(edit.Name), edit.Message, edit.Project,
		models.JoinResponsible(edit.Responsible), modifiedBy, time.Now().UTC(),
		id, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, s.missOrConflict(ctx, id)
	}
	return expectedVersion + 1, nil
}

// BatchUpdatePriorities writes priority and status for a renumbered
// change-set in a single transaction. Every row's version is checked and
// bumped; one stale row aborts the whole batch.
func (s *Store) BatchUpdatePriorities(ctx context.Context, updates []board.PriorityUpdate, modifiedBy string) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, u := range updates {
		id, err := parseRowID(u.RowID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE tasks
            SET priority = ?, status = ?, version = version + 1, modified_by = ?, modified_at = ?
            WHERE id = ? AND version = ?`,
			u.Priority, u.Status, modifiedBy, now, id, u.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("batch update row %s: %w", u.RowID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.missOrConflictTx(ctx, tx, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Append inserts a new task row with version 0 and returns it with its
// store-assigned row id.
func (s *Store) Append(ctx context.Context, t models.Task) (models.Task, error) {
	if strings.TrimSpace(t.Name) == "" {
		return models.Task{}, &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if t.Priority <= 0 {
		t.Priority = models.SentinelPriority
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(name, message, status, project, responsible, priority, version, modified_by, modified_at)
        VALUES(?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		strings.TrimSpace(t.Name), t.Message, t.Status, t.Project,
		models.JoinResponsible(t.Responsible), t.Priority, t.ModifiedBy, time.Now().UTC())
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("task id: %w", err)
	}
	return s.GetTask(ctx, strconv.FormatInt(id, 10))
}

// EmployeeByUserID resolves a chat identity to an employee record.
func (s *Store) EmployeeByUserID(ctx context.Context, userID int64) (models.Employee, error) {
	var e models.Employee
	err := s.db.QueryRowContext(ctx, `SELECT user_id, name, phone, role FROM employees WHERE user_id = ?`, userID).
		Scan(&e.UserID, &e.Name, &e.Phone, &e.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Employee{}, models.ErrEmployeeNotFound
	}
	if err != nil {
		return models.Employee{}, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// OwnerEmployee returns the employee holding the owner role, the recipient
// of registration requests.
func (s *Store) OwnerEmployee(ctx context.Context) (models.Employee, error) {
	var e models.Employee
	err := s.db.QueryRowContext(ctx, `SELECT user_id, name, phone, role FROM employees WHERE role = ? ORDER BY user_id LIMIT 1`, models.RoleOwner).
		Scan(&e.UserID, &e.Name, &e.Phone, &e.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Employee{}, models.ErrEmployeeNotFound
	}
	if err != nil {
		return models.Employee{}, fmt.Errorf("get owner: %w", err)
	}
	return e, nil
}

// ListEmployees retrieves all employees ordered by name.
func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, name, phone, role FROM employees ORDER BY name, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		var e models.Employee
		if err := rows.Scan(&e.UserID, &e.Name, &e.Phone, &e.Role); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// SaveEmployee inserts or replaces an employee record.
func (s *Store) SaveEmployee(ctx context.Context, e models.Employee) error {
	if strings.TrimSpace(e.Name) == "" {
		return &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO employees(user_id, name, phone, role) VALUES(?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, phone = excluded.phone, role = excluded.role`,
		e.UserID, strings.TrimSpace(e.Name), e.Phone, e.Role)
	if err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

// AccessRecord is one row of the session audit trail.
type AccessRecord struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// LogAccess appends a session audit row. Failures are logged and
// swallowed: auditing must never block a login.
func (s *Store) LogAccess(ctx context.Context, rec AccessRecord) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO access_log(ts, user_id, username, first_name, last_name) VALUES(?, ?, ?, ?, ?)`,
		time.Now().UTC(), rec.UserID, rec.Username, rec.FirstName, rec.LastName)
	if err != nil {
		s.logger.Error("access log write failed", slog.Int64("user_id", rec.UserID), slog.String("error", err.Error()))
	}
}

// missOrConflict distinguishes a vanished row from a stale version after a
// zero-row conditional write.
func (s *Store) missOrConflict(ctx context.Context, id int64) error {
	return missOrConflictQuerier(ctx, s.db, id)
}

func (s *Store) missOrConflictTx(ctx context.Context, tx *sql.Tx, id int64) error {
	return missOrConflictQuerier(ctx, tx, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func missOrConflictQuerier(ctx context.Context, q querier, id int64) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("check task: %w", err)
	}
	return models.ErrVersionConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var (
		t           models.Task
		id          int64
		responsible string
	)
	if err := row.Scan(&id, &t.Name, &t.Message, &t.Status, &t.Project, &responsible, &t.Priority, &t.Version, &t.ModifiedBy, &t.ModifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Task{}, err
		}
		return models.Task{}, fmt.Errorf("scan task: %w", err)
	}
	t.RowID = strconv.FormatInt(id, 10)
	t.Responsible = models.SplitResponsible(responsible)
	return t, nil
}

// parseRowID rejects temporary client-synthesized ids: they never reach a
// real row.
func parseRowID(rowID string) (int64, error) {
	id, err := strconv.ParseInt(rowID, 10, 64)
	if err != nil {
		return 0, models.ErrTaskNotFound
	}
	return id, nil
}
