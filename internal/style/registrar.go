package style

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// DefaultPagePrefix prefixes page-level style keys.
const DefaultPagePrefix = "data-te-page-"

// Registrar maintains at most one registered sheet per key.
//
// Thread-safety: all methods are safe for concurrent use. Registrations for
// the same key are serialised.
type Registrar struct {
	mu         sync.Mutex
	registry   Registry
	live       map[string]*Sheet
	serial     int64
	pagePrefix string
	logger     *slog.Logger
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Registrar) {
		r.logger = l
	}
}

// WithPagePrefix overrides the key prefix used by RegisterPage.
func WithPagePrefix(prefix string) Option {
	return func(r *Registrar) {
		if prefix != "" {
			r.pagePrefix = prefix
		}
	}
}

// NewRegistrar creates a registrar attached to registry.
func NewRegistrar(registry Registry, opts ...Option) *Registrar {
	r := &Registrar{
		registry:   registry,
		live:       make(map[string]*Sheet),
		pagePrefix: DefaultPagePrefix,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register attaches css under key, replacing any previous sheet for key.
//
// The replacement is added before the previous sheet is removed. Empty css
// leaves the current registration untouched.
func (r *Registrar) Register(key, css string) {
	if strings.TrimSpace(css) == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.serial++
	next := &Sheet{Key: key, CSS: css, Serial: r.serial}
	prev := r.live[key]

	r.registry.Add(next)
	if prev != nil {
		r.registry.Remove(prev)
	}
	r.live[key] = next

	r.logger.Debug("style registered",
		"key", key,
		"serial", next.Serial,
		"replaced", prev != nil,
		"bytes", len(css),
	)
}

// RegisterPage registers page-level css for pageID.
func (r *Registrar) RegisterPage(pageID, css string) {
	r.Register(r.PageKey(pageID), css)
}

// PageKey returns the registration key for a page.
func (r *Registrar) PageKey(pageID string) string {
	if r.pagePrefix == DefaultPagePrefix {
		return ir.PageStyleKey(pageID)
	}
	return r.pagePrefix + pageID
}

// Lookup returns the live sheet for key.
func (r *Registrar) Lookup(key string) (*Sheet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[key]
	return s, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registrar) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.live))
	for k := range r.live {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset detaches every registered sheet.
func (r *Registrar) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, s := range r.live {
		r.registry.Remove(s)
		delete(r.live, key)
	}
}
