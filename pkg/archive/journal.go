// Package archive keeps a SQLite journal of delivered segments. Audio is
// stored Opus-compressed and, when a passphrase is configured, sealed with
// XChaCha20-Poly1305.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/earshot/pkg/audio"
	"github.com/NicolasHaas/earshot/pkg/crypto"
)

const dbTimeLayout = "2006-01-02 15:04:05.000"

// ErrNotFound is returned by Load for an unknown segment ID.
var ErrNotFound = errors.New("archive: segment not found")

// Entry is a journal row without its audio.
type Entry struct {
	ID         string
	CapturedAt time.Time
	Duration   time.Duration
	SampleRate int
	Samples    int
	Text       string
	Sealed     bool
}

// Options configures Open.
type Options struct {
	// Passphrase enables sealing; empty stores plain Opus.
	Passphrase string
}

// Journal is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	cipher *crypto.SegmentCipher

	mu       sync.Mutex
	encoders map[int]*audio.Encoder
}

// Open opens (or creates) the journal at path and runs migrations.
func Open(path string, opts Options) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open DB: %w", err)
	}
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: set busy_timeout: %w", err)
	}

	j := &Journal{db: db, encoders: make(map[int]*audio.Encoder)}
	if err := j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	if opts.Passphrase != "" {
		salt, err := j.salt(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		c, err := crypto.NewSegmentCipher(crypto.DeriveKey(opts.Passphrase, salt))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		j.cipher = c
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS segments (
		id          TEXT    PRIMARY KEY,
		captured_at TEXT    NOT NULL,
		duration_ms INTEGER NOT NULL,
		sample_rate INTEGER NOT NULL,
		samples     INTEGER NOT NULL,
		text        TEXT    NOT NULL DEFAULT '',
		sealed      INTEGER NOT NULL DEFAULT 0,
		payload     BLOB    NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_segments_captured ON segments(captured_at);
	`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// salt returns the journal's key-derivation salt, creating it on first use.
func (j *Journal) salt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := j.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archive: read salt: %w", err)
	}
	salt, err = crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	if _, err := j.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('salt', ?)`, salt); err != nil {
		return nil, fmt.Errorf("archive: store salt: %w", err)
	}
	return salt, nil
}

// encode reuses one encoder per rate; EncodeSegment resets its state.
func (j *Journal) encode(seg audio.Segment) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	enc, ok := j.encoders[seg.SampleRate]
	if !ok {
		var err error
		enc, err = audio.NewEncoder(seg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		j.encoders[seg.SampleRate] = enc
	}
	return enc.EncodeSegment(seg.Samples)
}

// Save implements recognize.Archive.
func (j *Journal) Save(ctx context.Context, seg audio.Segment, text string) error {
	payload, err := j.encode(seg)
	if err != nil {
		return err
	}
	sealed := 0
	if j.cipher != nil {
		if payload, err = j.cipher.Seal(seg.ID, payload); err != nil {
			return err
		}
		sealed = 1
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO segments (id, captured_at, duration_ms, sample_rate, samples, text, sealed, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seg.ID, seg.CapturedAt.UTC().Format(dbTimeLayout), seg.Duration.Milliseconds(),
		seg.SampleRate, len(seg.Samples), text, sealed, payload)
	if err != nil {
		return fmt.Errorf("archive: insert segment: %w", err)
	}
	return nil
}

// List returns the newest entries first. limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, captured_at, duration_ms, sample_rate, samples, text, sealed
		FROM segments ORDER BY captured_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			capturedAt string
			durationMs int64
			sealed     int
		)
		if err := rows.Scan(&e.ID, &capturedAt, &durationMs, &e.SampleRate, &e.Samples, &e.Text, &sealed); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		e.CapturedAt, _ = time.Parse(dbTimeLayout, capturedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.Sealed = sealed != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Load decodes a stored segment back to float32 samples.
func (j *Journal) Load(ctx context.Context, id string) (audio.Segment, Entry, error) {
	var (
		e          Entry
		capturedAt string
		durationMs int64
		sealed     int
		payload    []byte
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, captured_at, duration_ms, sample_rate, samples, text, sealed, payload
		 FROM segments WHERE id = ?`, id).
		Scan(&e.ID, &capturedAt, &durationMs, &e.SampleRate, &e.Samples, &e.Text, &sealed, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return audio.Segment{}, Entry{}, ErrNotFound
	}
	if err != nil {
		return audio.Segment{}, Entry{}, fmt.Errorf("archive: load: %w", err)
	}
	e.CapturedAt, _ = time.Parse(dbTimeLayout, capturedAt)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	e.Sealed = sealed != 0

	if e.Sealed {
		if j.cipher == nil {
			return audio.Segment{}, e, fmt.Errorf("archive: segment %s is sealed and no passphrase was given", id)
		}
		if payload, err = j.cipher.Open(id, payload); err != nil {
			return audio.Segment{}, e, err
		}
	}

	dec, err := audio.NewDecoder(e.SampleRate)
	if err != nil {
		return audio.Segment{}, e, fmt.Errorf("archive: %w", err)
	}
	samples, err := dec.DecodeSegment(payload, e.Samples)
	if err != nil {
		return audio.Segment{}, e, fmt.Errorf("archive: %w", err)
	}
	seg := audio.Segment{
		ID:         e.ID,
		Samples:    samples,
		SampleRate: e.SampleRate,
		Duration:   audio.SamplesDuration(len(samples), e.SampleRate),
		CapturedAt: e.CapturedAt,
	}
	return seg, e, nil
}

// UpdateText replaces the transcript of a stored segment.
func (j *Journal) UpdateText(ctx context.Context, id, text string) error {
	res, err := j.db.ExecContext(ctx, `UPDATE segments SET text = ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("archive: update text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
