package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	authn "github.com/torsoroso16/api-project/internal/auth"
	"github.com/torsoroso16/api-project/internal/domain"
	domainauth "github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/user"
	"github.com/torsoroso16/api-project/internal/repository/memory"
	"go.uber.org/zap"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]user.User
	roles  map[string]user.Role
}

func newFakeUsers(roles ...string) *fakeUsers {
	f := &fakeUsers{byID: map[int64]user.User{}, roles: map[string]user.Role{}}
	for i, r := range roles {
		f.roles[r] = user.Role{ID: int64(i + 1), Name: r}
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.byID {
		if ex.Email == u.Email {
			return domain.ErrConflict
		}
	}
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = cloneUser(*u)
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id int64) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	return f.find(func(u user.User) bool { return u.Email == email })
}

func (f *fakeUsers) FindByVerificationToken(_ context.Context, token string) (*user.User, error) {
	return f.find(func(u user.User) bool { return u.VerificationToken != nil && *u.VerificationToken == token })
}

func (f *fakeUsers) find(match func(user.User) bool) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUsers) Update(_ context.Context, id int64, p user.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.IsEmailVerified != nil {
		u.IsEmailVerified = *p.IsEmailVerified
	}
	if p.ClearVerificationToken {
		u.VerificationToken = nil
	}
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) FindRoleByName(_ context.Context, name string) (*user.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func cloneUser(u user.User) user.User {
	u.Roles = append([]string(nil), u.Roles...)
	if u.VerificationToken != nil {
		t := *u.VerificationToken
		u.VerificationToken = &t
	}
	return u
}

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]domainauth.RefreshToken
}

func newFakeLedger() *fakeLedger { return &fakeLedger{rows: map[string]domainauth.RefreshToken{}} }

func (l *fakeLedger) Create(_ context.Context, t *domainauth.RefreshToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.rows[t.Jti]; ok {
		return domain.ErrConflict
	}
	t.ID = int64(len(l.rows) + 1)
	l.rows[t.Jti] = *t
	return nil
}

func (l *fakeLedger) FindByJti(_ context.Context, jti string) (*domainauth.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.rows[jti]
	if !ok || t.IsRevoked {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (l *fakeLedger) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.rows[jti]
	return ok && t.IsRevoked, nil
}

func (l *fakeLedger) Revoke(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.rows[jti]
	if !ok || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	l.rows[jti] = t
	return true, nil
}

func (l *fakeLedger) RevokeAllByUser(_ context.Context, userID int64) ([]domainauth.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domainauth.RefreshToken
	for jti, t := range l.rows {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			l.rows[jti] = t
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *fakeLedger) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for jti, t := range l.rows {
		if t.ExpiresAt.Before(now) {
			delete(l.rows, jti)
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) get(jti string) (domainauth.RefreshToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.rows[jti]
	return t, ok
}

func (l *fakeLedger) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.rows {
		if !t.IsRevoked {
			n++
		}
	}
	return n
}

type sentMail struct {
	kind  string
	to    string
	token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, email, token string) error {
	return m.record("verification", email, token)
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, email, token string) error {
	return m.record("password_reset", email, token)
}

func (m *fakeMailer) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
	return m.err
}

func (m *fakeMailer) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

type recordedEvent struct {
	kind   domainauth.EventKind
	userID *int64
	detail map[string]any
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *fakeEvents) LogEvent(_ context.Context, kind domainauth.EventKind, userID *int64, details map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{kind: kind, userID: userID, detail: details})
}

func (e *fakeEvents) count(kind domainauth.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.kind == kind {
			n++
		}
	}
	return n
}

// brokenCache fails every call; the engine must keep working off the ledger.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }
func (brokenCache) Get(context.Context, string) ([]byte, error)             { return nil, errCacheDown }
func (brokenCache) Delete(context.Context, string) (bool, error)            { return false, errCacheDown }
func (brokenCache) Exists(context.Context, string) (bool, error)            { return false, errCacheDown }
func (brokenCache) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errCacheDown
}

// hookedCache runs before once, ahead of the first Set or Delete on a key
// with the given prefix, so a test can act inside that window.
type hookedCache struct {
	*memory.Cache
	op     string
	prefix string
	once   sync.Once
	before func()
}

func (c *hookedCache) fire(op, key string) {
	if op == c.op && strings.HasPrefix(key, c.prefix) {
		c.once.Do(c.before)
	}
}

func (c *hookedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.fire("set", key)
	return c.Cache.Set(ctx, key, value, ttl)
}

func (c *hookedCache) Delete(ctx context.Context, key string) (bool, error) {
	c.fire("delete", key)
	return c.Cache.Delete(ctx, key)
}

type harness struct {
	uc       *Usecase
	users    *fakeUsers
	ledger   *fakeLedger
	cache    *memory.Cache
	mailer   *fakeMailer
	events   *fakeEvents
	clock    *clock
	codecClk *clock
}

type harnessOpt func(*Deps, *Config)

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		users:    newFakeUsers("customer", "admin"),
		ledger:   newFakeLedger(),
		mailer:   &fakeMailer{},
		events:   &fakeEvents{},
		clock:    newClock(),
		codecClk: newClock(),
	}
	h.cache = memory.NewCache().WithClock(h.codecClk.Now)

	codec, err := authn.NewCodec(authn.CodecConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     10 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		Issuer:        "storefront",
		Now:           h.codecClk.Now,
	})
	require.NoError(t, err)

	deps := Deps{
		Users:  h.users,
		Ledger: h.ledger,
		Cache:  h.cache,
		Hasher: authn.NewHasher(authn.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1}),
		Codec:  codec,
		Mailer: h.mailer,
		Events: h.events,
		Log:    zap.NewNop(),
	}
	cfg := Config{
		ResetTTL:              time.Hour,
		DefaultRole:           "customer",
		LoginFailureThreshold: 5,
		LoginFailureWindow:    15 * time.Minute,
		Now:                   h.clock.Now,
	}
	for _, o := range opts {
		o(&deps, &cfg)
	}
	h.uc, err = NewUseCase(deps, cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) register(t *testing.T, email, password string) *Session {
	t.Helper()
	s, err := h.uc.Register(context.Background(), "Test", email, password)
	require.NoError(t, err)
	return s
}
