package store

import (
	"database/sql"
	"time"
)

// SetImportedFileHash records the content hash of an imported quiz file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?, imported_at = ?`,
		path, hash, now, hash, now,
	)
	return err
}

// GetImportedFileHash returns the hash recorded for path.
// Returns empty string and nil error if the file was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// HasImportedHash reports whether any file with this content hash was imported.
func (s *Store) HasImportedHash(hash string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM imported_files WHERE hash = ?`, hash).Scan(&n)
	return n > 0, err
}
