package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yxzhu/wubiq/internal/imaging"
	"github.com/yxzhu/wubiq/internal/model"
)

// Store is the persisted, append-only template library. Entries are keyed by
// digit class and deduplicated by the content hash of the normalized
// pattern, so concurrent duplicate appends are idempotent.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS templates (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    digit      INTEGER NOT NULL CHECK (digit BETWEEN 0 AND 9),
    hash       TEXT    NOT NULL,
    pattern    BLOB    NOT NULL,
    source     TEXT,
    created_at TIMESTAMP NOT NULL,
    UNIQUE(digit, hash)
);
CREATE INDEX IF NOT EXISTS idx_templates_digit ON templates(digit);
`

// Open opens (creating if needed) the template library at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	// busy_timeout serializes concurrent batch writers instead of failing.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open template store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init template store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one labeled glyph pattern for digit. Appending a pattern
// already present under that digit leaves the corpus unchanged and returns
// false; the same pattern may be stored under several digit classes.
// Source identifies the sample the pattern came from (fixture name or
// "live"), kept for auditing only.
func (s *Store) Append(digit int, g imaging.Glyph, source string) (bool, error) {
	if digit < 0 || digit > 9 {
		return false, fmt.Errorf("digit must be 0-9, got %d", digit)
	}

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO templates (digit, hash, pattern, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		digit, g.Hash(), g.Pack(), source, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("append template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendLabeled records every glyph of a segmented captcha under its labeled
// digit. Returns how many patterns were new.
func (s *Store) AppendLabeled(label string, glyphs []imaging.Glyph, source string) (int, error) {
	if !model.IsDigits(label) {
		return 0, fmt.Errorf("label %q is not %d digits", label, model.DigitCount)
	}
	if len(glyphs) != model.DigitCount {
		return 0, fmt.Errorf("expected %d glyphs, got %d", model.DigitCount, len(glyphs))
	}

	added := 0
	for i, g := range glyphs {
		ok, err := s.Append(int(label[i]-'0'), g, source)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Count returns the total number of stored patterns.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM templates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return n, nil
}

// CountByDigit returns the number of stored patterns per digit class.
func (s *Store) CountByDigit() (map[int]int, error) {
	rows, err := s.db.Query(`SELECT digit, COUNT(*) FROM templates GROUP BY digit ORDER BY digit`)
	if err != nil {
		return nil, fmt.Errorf("count templates by digit: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int, 10)
	for rows.Next() {
		var d, n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}
	return out, rows.Err()
}

// Snapshot loads a fixed in-memory view of the library. Matching during a
// batch runs against one snapshot; appends made after Snapshot returns are
// only visible to snapshots taken later.
func (s *Store) Snapshot() (*Snapshot, error) {
	rows, err := s.db.Query(`SELECT digit, pattern FROM templates ORDER BY digit, id`)
	if err != nil {
		return nil, fmt.Errorf("load template snapshot: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{patterns: make(map[int][]imaging.Glyph, 10)}
	for rows.Next() {
		var digit int
		var pattern []byte
		if err := rows.Scan(&digit, &pattern); err != nil {
			return nil, err
		}
		g, err := imaging.Unpack(pattern)
		if err != nil {
			return nil, fmt.Errorf("digit %d: %w", digit, err)
		}
		snap.patterns[digit] = append(snap.patterns[digit], g)
		snap.size++
	}
	return snap, rows.Err()
}

// Snapshot is an immutable view of the template library at one point in
// time. Safe for concurrent readers.
type Snapshot struct {
	patterns map[int][]imaging.Glyph
	size     int
}

// Lookup returns the stored patterns for one digit class in insertion
// order. The returned slice must not be mutated.
func (s *Snapshot) Lookup(digit int) []imaging.Glyph {
	return s.patterns[digit]
}

// Size returns the total number of patterns in the snapshot.
func (s *Snapshot) Size() int {
	return s.size
}

// Empty reports whether the snapshot holds no patterns at all.
func (s *Snapshot) Empty() bool {
	return s.size == 0
}
