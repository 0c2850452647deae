package store

import (
	"database/sql"
	"errors"
)

const activeExamKey = "active_exam"

// SetState upserts a key-value pair in the app_state table.
func (s *Store) SetState(key, value string) error {
	return setState(s.db, key, value)
}

func setState(db execer, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO app_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetState returns the value for a state key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetActive records id as the active exam. An empty id clears it.
func (s *Store) SetActive(id string) error {
	if id == "" {
		_, err := s.db.Exec(`DELETE FROM app_state WHERE key = ?`, activeExamKey)
		return err
	}
	return s.SetState(activeExamKey, id)
}

// Active returns the id of the active exam, or "" when none is active.
func (s *Store) Active() (string, error) {
	return s.GetState(activeExamKey)
}
