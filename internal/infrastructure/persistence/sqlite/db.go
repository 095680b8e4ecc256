package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/StatsAiGuy/exeflow/internal/domain/repository"
	"github.com/StatsAiGuy/exeflow/internal/infrastructure/resilience"
)

// Open opens (or creates) the exeflow database and applies migrations.
// The store is shared by all concurrent project loops; busy_timeout plus
// the contention retry below keep transient lock failures transparent.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := NewMigrator(db).Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// contentionRetries bounds transparent retries on SQLITE_BUSY
const contentionRetries = 3

var contentionBackoff = resilience.BackoffConfig{
	BaseDelay:    25 * time.Millisecond,
	MaxDelay:     250 * time.Millisecond,
	JitterFactor: 0.25,
	MaxRetries:   contentionRetries,
}

// isContentionError matches sqlite's transient lock failures
func isContentionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// withContentionRetry retries fn on transient contention with backoff.
// Non-contention errors return immediately; an exhausted retry budget
// surfaces wrapped in repository.ErrContention as a classified hard error.
func withContentionRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= contentionRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !isContentionError(err) {
			return err
		}
		if attempt == contentionRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resilience.CalculateBackoff(attempt, contentionBackoff)):
		}
	}
	return fmt.Errorf("%w: %v", repository.ErrContention, err)
}

// formatTime serializes timestamps the way all repositories store them
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserializes a stored timestamp
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// parseTimePtr deserializes a nullable stored timestamp
func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
