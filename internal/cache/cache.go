// Package cache provides the expiry-based cache for expensive retrieval
// artifacts (index build stamps, corpus snapshots) and for whole search
// results keyed by query plus character context.
//
// The contract everywhere is best-effort: a write failure is logged and
// swallowed, and any read failure (missing file, stale entry, corrupt
// payload) is a cache miss, never an error surfaced to the caller.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Expiry classes. Search results and corpus-dependent artifacts use the
// short window; model-like artifacts that only change on redeploy use the
// long one.
const (
	DefaultShortExpiry = 12 * time.Hour
	DefaultLongExpiry  = 24 * time.Hour
)

// Key derives a deterministic cache key from base content and the reduced
// character-context projection (see query.CacheProjection). Queries that
// differ only in fields outside the projection share a key.
func Key(base, projection string) string {
	input := base
	if projection != "" {
		input = base + "|" + projection
	}
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Manager is a file-backed cache rooted at a dedicated directory.
type Manager struct {
	dir   string
	short time.Duration
	long  time.Duration
}

// NewManager creates the cache directory if needed.
func NewManager(dir string, short, long time.Duration) (*Manager, error) {
	if short <= 0 {
		short = DefaultShortExpiry
	}
	if long <= 0 {
		long = DefaultLongExpiry
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Manager{dir: dir, short: short, long: long}, nil
}

// Dir returns the cache root directory.
func (m *Manager) Dir() string { return m.dir }

// ShortExpiry returns the short expiry window.
func (m *Manager) ShortExpiry() time.Duration { return m.short }

// LongExpiry returns the long expiry window.
func (m *Manager) LongExpiry() time.Duration { return m.long }

// envelope wraps every cached payload with its creation time, so expiry is
// carried in the entry itself rather than relying on filesystem mtimes.
type envelope struct {
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Load reads the named entry into out. Returns false on any miss condition:
// absent file, expired entry, or an undecodable payload (corruption counts
// as a miss by contract).
func (m *Manager) Load(name string, expiry time.Duration, out any) bool {
	path := filepath.Join(m.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("cache entry corrupt, treating as miss",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return false
	}
	if time.Since(env.CreatedAt) >= expiry {
		return false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		slog.Warn("cache payload undecodable, treating as miss",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// Store persists the named entry best-effort using write-then-rename, so a
// concurrent reader never observes a truncated file. Failures are logged,
// never returned: losing a cache write is cheaper than failing a query.
func (m *Manager) Store(name string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache store failed to marshal payload",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return
	}
	data, err := json.Marshal(envelope{CreatedAt: time.Now(), Payload: payload})
	if err != nil {
		slog.Warn("cache store failed to marshal envelope",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return
	}

	path := filepath.Join(m.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("cache store failed to write",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		// Concurrent writers race here; last rename wins either way.
		slog.Warn("cache store failed to rename",
			slog.String("name", name),
			slog.String("error", err.Error()))
		_ = os.Remove(tmp)
	}
}

// LoadOrCreate returns the cached artifact when fresh, otherwise calls
// create, persists the result best-effort, and returns it. Creation errors
// are the only errors this function can return.
func LoadOrCreate[T any](m *Manager, name string, expiry time.Duration, create func() (T, error)) (T, error) {
	var cached T
	if m.Load(name, expiry, &cached) {
		slog.Debug("cache hit", slog.String("name", name))
		return cached, nil
	}

	created, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	m.Store(name, created)
	return created, nil
}

// ResultCache stores whole search results with the short expiry class.
// Implementations: the file Manager itself, and an optional Redis backend.
type ResultCache interface {
	// GetResult reads a cached result into out; false means miss.
	GetResult(ctx context.Context, typeTag, key string, out any) bool

	// SaveResult persists a result best-effort.
	SaveResult(ctx context.Context, typeTag, key string, v any)
}

// GetResult implements ResultCache over cache files named {type}_{key}.json.
func (m *Manager) GetResult(_ context.Context, typeTag, key string, out any) bool {
	return m.Load(resultFileName(typeTag, key), m.short, out)
}

// SaveResult implements ResultCache.
func (m *Manager) SaveResult(_ context.Context, typeTag, key string, v any) {
	m.Store(resultFileName(typeTag, key), v)
}

func resultFileName(typeTag, key string) string {
	return typeTag + "_" + key + ".json"
}

var _ ResultCache = (*Manager)(nil)
