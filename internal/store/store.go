// Package store keeps the collection of generated exams in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/examforge/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for an unknown exam id.
var ErrNotFound = errors.New("exam not found")

type Store struct {
	db *sql.DB
}

// New opens the database at dbPath. ":memory:" gives a collection that
// lives as long as the process.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	memory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
	if memory {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		title TEXT NOT NULL,
		subject TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exams_created ON exams(created_at);

	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add stores exam. The exam must already carry its id.
func (s *Store) Add(exam model.Exam) error {
	return insertExam(s.db, exam)
}

// AddActive stores exam and makes it the active exam. Either both happen
// or neither does.
func (s *Store) AddActive(exam model.Exam) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertExam(tx, exam); err != nil {
		return err
	}
	if err := setState(tx, activeExamKey, exam.ID); err != nil {
		return fmt.Errorf("activate exam %s: %w", exam.ID, err)
	}
	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertExam(db execer, exam model.Exam) error {
	if exam.ID == "" {
		return errors.New("add exam: missing id")
	}
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO exams (id, created_at, title, subject, data) VALUES (?, ?, ?, ?, ?)`,
		exam.ID, exam.CreatedAt.UnixMilli(), exam.Title, exam.Subject, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert exam %s: %w", exam.ID, err)
	}
	return nil
}

// Get returns the exam with the given id or ErrNotFound.
func (s *Store) Get(id string) (model.Exam, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM exams WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, ErrNotFound
	}
	if err != nil {
		return model.Exam{}, fmt.Errorf("get exam %s: %w", id, err)
	}
	return decodeExam(data)
}

// List returns every exam, newest first.
func (s *Store) List() ([]model.Exam, error) {
	rows, err := s.db.Query(`SELECT data FROM exams ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		exam, err := decodeExam(data)
		if err != nil {
			return nil, err
		}
		exams = append(exams, exam)
	}
	return exams, rows.Err()
}

// Delete removes the exam with the given id. Deleting an unknown id returns
// ErrNotFound.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete exam %s: %w", id, err)
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

// Count returns the number of stored exams.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&n)
	return n, err
}

func decodeExam(data string) (model.Exam, error) {
	var exam model.Exam
	if err := json.Unmarshal([]byte(data), &exam); err != nil {
		return exam, fmt.Errorf("decode exam: %w", err)
	}
	exam.CreatedAt = exam.CreatedAt.In(time.Local)
	return exam, nil
}
