// Package publisher creates the content units sessions live in and resolves
// who is playing. Local keeps both in process.
package publisher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Content defaults for a new session unit.
const (
	TitlePrefix    = "Daily Job - "
	DefaultPreview = "Loading ..."
	titleLayout    = "January 2, 2006"
)

// ErrEmptyTitle is returned when a unit is created without a title.
var ErrEmptyTitle = errors.New("content unit title is empty")

// Unit is one published content unit; its id is the session id.
type Unit struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

// Title names the unit published on day t.
func Title(t time.Time) string {
	return TitlePrefix + t.Format(titleLayout)
}

type userKey struct{}

// WithUser returns a context carrying the acting player's name.
func WithUser(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, userKey{}, name)
}

// UserFrom returns the player stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(userKey{}).(string)
	return name, ok && name != ""
}

// Option applies a configuration option to Local.
type Option func(*Local)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Local) {
		if now != nil {
			l.now = now
		}
	}
}

// WithDefaultUser sets the identity returned when the context carries none.
func WithDefaultUser(name string) Option {
	return func(l *Local) { l.defaultUser = name }
}

// Local is an in-process publishing and identity service.
type Local struct {
	mu          sync.RWMutex
	units       map[string]Unit
	now         func() time.Time
	defaultUser string
}

// NewLocal creates an empty Local.
func NewLocal(opts ...Option) *Local {
	l := &Local{
		units: make(map[string]Unit),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateUnit publishes a unit and returns it with a fresh uuid.
func (l *Local) CreateUnit(ctx context.Context, title, preview string) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return Unit{}, err
	}
	if title == "" {
		return Unit{}, ErrEmptyTitle
	}
	u := Unit{
		ID:        uuid.NewString(),
		Title:     title,
		Preview:   preview,
		CreatedAt: l.now(),
	}
	l.mu.Lock()
	l.units[u.ID] = u
	l.mu.Unlock()
	return u, nil
}

// Units lists published units, newest first.
func (l *Local) Units() []Unit {
	l.mu.RLock()
	out := make([]Unit, 0, len(l.units))
	for _, u := range l.units {
		out = append(out, u)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CurrentUser returns the context identity, else the default user. An empty
// result means the caller is anonymous.
func (l *Local) CurrentUser(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name, ok := UserFrom(ctx); ok {
		return name, nil
	}
	return l.defaultUser, nil
}
