// Package history stores speaker registrations and prediction results in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver
)

var (
	ErrNameRequired   = errors.New("history: please enter your name or nickname")
	ErrInvalidGender  = errors.New("history: unknown gender option")
	ErrUnknownSpeaker = errors.New("history: unknown speaker")
)

// timeLayout is fixed width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// GenderOptions lists the accepted registration choices.
var GenderOptions = []string{"Male", "Female", "Rather not say", "LGBTQIA+"}

type Speaker struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Gender       string    `json:"gender"`
	RegisteredAt time.Time `json:"registered_at"`
}

type Result struct {
	ID             string    `json:"id"`
	SpeakerID      string    `json:"speaker_id,omitempty"`
	Label          string    `json:"label"`
	Confidence     float32   `json:"confidence"`
	Baybayin       string    `json:"baybayin"`
	AudioDuration  float64   `json:"audio_duration_sec"`
	ProcessingTime float64   `json:"processing_time_sec"`
	RTF            float64   `json:"rtf"`
	RecordingPath  string    `json:"recording_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite allows one writer; an in-memory database also lives per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS speakers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL,
		registered_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		speaker_id TEXT REFERENCES speakers(id),
		label TEXT NOT NULL,
		confidence REAL NOT NULL,
		baybayin TEXT NOT NULL,
		audio_duration REAL NOT NULL,
		processing_time REAL NOT NULL,
		rtf REAL NOT NULL,
		recording_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Register validates and stores a speaker profile.
func (s *Store) Register(ctx context.Context, name, gender string) (Speaker, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Speaker{}, ErrNameRequired
	}

	if !validGender(gender) {
		return Speaker{}, fmt.Errorf("%w: %q", ErrInvalidGender, gender)
	}

	sp := Speaker{
		ID:           uuid.NewString(),
		Name:         name,
		Gender:       gender,
		RegisteredAt: s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO speakers (id, name, gender, registered_at) VALUES (?, ?, ?, ?)`,
		sp.ID, sp.Name, sp.Gender, sp.RegisteredAt.Format(timeLayout))
	if err != nil {
		return Speaker{}, fmt.Errorf("insert speaker: %w", err)
	}

	return sp, nil
}

// Speaker looks up a registered speaker. Unregistered ids give ErrUnknownSpeaker.
func (s *Store) Speaker(ctx context.Context, id string) (Speaker, error) {
	var (
		sp         Speaker
		registered string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, gender, registered_at FROM speakers WHERE id = ?`, id).
		Scan(&sp.ID, &sp.Name, &sp.Gender, &registered)
	if errors.Is(err, sql.ErrNoRows) {
		return Speaker{}, fmt.Errorf("%w: %q", ErrUnknownSpeaker, id)
	}
	if err != nil {
		return Speaker{}, fmt.Errorf("query speaker: %w", err)
	}

	sp.RegisteredAt, err = time.Parse(timeLayout, registered)
	if err != nil {
		return Speaker{}, fmt.Errorf("parse registered_at: %w", err)
	}

	return sp, nil
}

// Record stores a result, assigning an ID and timestamp when missing.
func (s *Store) Record(ctx context.Context, r Result) (Result, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	var speaker any
	if r.SpeakerID != "" {
		speaker = r.SpeakerID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (id, speaker_id, label, confidence, baybayin, audio_duration,
			processing_time, rtf, recording_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, speaker, r.Label, r.Confidence, r.Baybayin, r.AudioDuration,
		r.ProcessingTime, r.RTF, r.RecordingPath, r.CreatedAt.Format(timeLayout))
	if err != nil {
		return Result{}, fmt.Errorf("insert result: %w", err)
	}

	return r, nil
}

// Recent returns up to limit results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(speaker_id, ''), label, confidence, baybayin, audio_duration,
			processing_time, rtf, recording_path, created_at
		FROM results
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var (
			r       Result
			created string
		)
		if err := rows.Scan(&r.ID, &r.SpeakerID, &r.Label, &r.Confidence, &r.Baybayin,
			&r.AudioDuration, &r.ProcessingTime, &r.RTF, &r.RecordingPath, &created); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

func validGender(g string) bool {
	for _, o := range GenderOptions {
		if o == g {
			return true
		}
	}

	return false
}
