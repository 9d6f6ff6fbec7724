package ops

import (
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/castchunk/internal/config"
)

// Pagination limits
const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Run is the context of one locate or process invocation. Its ID tags every
// log line, names the per-run work directory and is stored with indexed
// episodes.
type Run struct {
	ID       string
	Settings config.Settings
	Logger   *slog.Logger
	Started  time.Time
}

// NewRun starts a run with a fresh ULID.
func NewRun(settings config.Settings, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id := ulid.MustNew(ulid.Timestamp(now), entropy).String()

	return &Run{
		ID:       id,
		Settings: settings,
		Logger:   logger.With(slog.String("run_id", id)),
		Started:  now,
	}
}

// clampPage applies limit defaults and bounds and makes offset non-negative.
func clampPage(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, max(offset, 0)
}
