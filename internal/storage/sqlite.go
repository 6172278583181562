package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for interactions and signups.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "coachd.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Interactions ---

func (s *Store) SaveInteraction(i Interaction) error {
	_, err := s.db.Exec(`
		INSERT INTO interactions (id, created_at, username, profile, question, answer, model, export_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.CreatedAt.UTC().Format(time.RFC3339), i.Username, i.Profile,
		i.Question, i.Answer, i.Model, i.ExportFile,
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	var i Interaction
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, created_at, username, profile, question, answer, model, export_file
		FROM interactions WHERE id = ?`, id,
	).Scan(&i.ID, &createdAt, &i.Username, &i.Profile, &i.Question, &i.Answer, &i.Model, &i.ExportFile)
	if err == sql.ErrNoRows {
		return Interaction{}, ErrNotFound
	}
	if err != nil {
		return Interaction{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}

// ListInteractions returns interactions newest first. A username filter of ""
// matches all users.
func (s *Store) ListInteractions(username string, limit, offset int) ([]Interaction, error) {
	query := `
		SELECT id, created_at, username, profile, question, answer, model, export_file
		FROM interactions`
	args := []interface{}{}
	if username != "" {
		query += " WHERE username = ?"
		args = append(args, username)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.ID, &createdAt, &i.Username, &i.Profile, &i.Question, &i.Answer, &i.Model, &i.ExportFile); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		i.CreatedAt = t
		results = append(results, i)
	}
	return results, rows.Err()
}

func (s *Store) DeleteInteraction(id string) error {
	res, err := s.db.Exec("DELETE FROM interactions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Signups ---

func (s *Store) CreateSignup(username, password string) error {
	_, err := s.db.Exec(`
		INSERT INTO signups (username, password, status, requested_at)
		VALUES (?, ?, ?, ?)`,
		username, password, SignupPending, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSignup(username string) (Signup, error) {
	var sg Signup
	var requestedAt string
	var reviewedAt sql.NullString
	err := s.db.QueryRow(`
		SELECT username, password, status, requested_at, reviewed_at
		FROM signups WHERE username = ?`, username,
	).Scan(&sg.Username, &sg.Password, &sg.Status, &requestedAt, &reviewedAt)
	if err == sql.ErrNoRows {
		return Signup{}, ErrNotFound
	}
	if err != nil {
		return Signup{}, err
	}
	t, err := time.Parse(time.RFC3339, requestedAt)
	if err != nil {
		return Signup{}, fmt.Errorf("parsing requested_at: %w", err)
	}
	sg.RequestedAt = t
	if reviewedAt.Valid {
		if sg.ReviewedAt, err = time.Parse(time.RFC3339, reviewedAt.String); err != nil {
			return Signup{}, fmt.Errorf("parsing reviewed_at: %w", err)
		}
	}
	return sg, nil
}

// ListSignups returns signups with the given status, oldest request first.
// A status of "" matches all.
func (s *Store) ListSignups(status string) ([]Signup, error) {
	query := "SELECT username, password, status, requested_at, reviewed_at FROM signups"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY requested_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Signup
	for rows.Next() {
		var sg Signup
		var requestedAt string
		var reviewedAt sql.NullString
		if err := rows.Scan(&sg.Username, &sg.Password, &sg.Status, &requestedAt, &reviewedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, requestedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing requested_at: %w", err)
		}
		sg.RequestedAt = t
		if reviewedAt.Valid {
			if sg.ReviewedAt, err = time.Parse(time.RFC3339, reviewedAt.String); err != nil {
				return nil, fmt.Errorf("parsing reviewed_at: %w", err)
			}
		}
		results = append(results, sg)
	}
	return results, rows.Err()
}

// UpdateSignupStatus moves a signup to approved or rejected and stamps the
// review time.
func (s *Store) UpdateSignupStatus(username, status string) error {
	if status != SignupApproved && status != SignupRejected {
		return fmt.Errorf("invalid signup status %q", status)
	}
	res, err := s.db.Exec(`UPDATE signups SET status = ?, reviewed_at = ? WHERE username = ?`,
		status, time.Now().UTC().Format(time.RFC3339), username)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
