package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	authn "github.com/torsoroso16/api-project/internal/auth"
	"github.com/torsoroso16/api-project/internal/domain"
	domainauth "github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/cache"
	"github.com/torsoroso16/api-project/internal/domain/user"
	"github.com/torsoroso16/api-project/internal/obs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("auth.usecase")

type Hasher interface {
	Hash(plain string) (string, error)
	Verify(encoded, plain string) bool
}

type TokenCodec interface {
	SignAccess(userID int64, email string, roles []string) (string, *authn.AccessClaims, error)
	SignRefresh(userID int64) (string, *authn.RefreshClaims, error)
	VerifyAccess(token string) (*authn.AccessClaims, error)
	VerifyRefresh(token string) (*authn.RefreshClaims, error)
	Decode(token string) (*authn.RefreshClaims, error)
	RefreshTTL() time.Duration
}

// Mailer is fire-and-forget from the engine's point of view: an error is
// logged and dropped.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

type SecurityEvents interface {
	LogEvent(ctx context.Context, kind domainauth.EventKind, userID *int64, details map[string]any)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Users  user.Repo
	Ledger domainauth.Ledger
	Cache  cache.Cache
	Hasher Hasher
	Codec  TokenCodec
	Mailer Mailer
	Events SecurityEvents
	// Tx is optional; without it ledger and user writes are not grouped.
	Tx  Transactor
	Log *zap.Logger
}

const DefaultLoginFailureWindow = 15 * time.Minute

type Config struct {
	ResetTTL              time.Duration
	DefaultRole           string
	LoginFailureThreshold int
	LoginFailureWindow    time.Duration
	Now                   func() time.Time
}

// Session is what a successful register, login or refresh hands back.
type Session struct {
	User             *user.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Usecase struct {
	users    user.Repo
	ledger   domainauth.Ledger
	hasher   Hasher
	codec    TokenCodec
	mailer   Mailer
	events   SecurityEvents
	tx       Transactor
	log      *zap.Logger
	sessions *sessions
	resets   resetTokens
	cache    cache.Cache
	cfg      Config

	// verified against when the email is unknown, so both paths cost one argon2 run
	dummyHash string
}

func NewUseCase(d Deps, cfg Config) (*Usecase, error) {
	if d.Users == nil || d.Ledger == nil || d.Cache == nil || d.Hasher == nil || d.Codec == nil {
		return nil, errors.New("auth usecase: missing dependency")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = "customer"
	}
	if cfg.LoginFailureThreshold <= 0 {
		cfg.LoginFailureThreshold = 5
	}
	if cfg.LoginFailureWindow <= 0 {
		cfg.LoginFailureWindow = DefaultLoginFailureWindow
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "auth"))
	if d.Events == nil {
		d.Events = NewSecurityLog(log, nil, cfg.Now)
	}
	if d.Tx == nil {
		d.Tx = noTx{}
	}

	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	return &Usecase{
		users:     d.Users,
		ledger:    d.Ledger,
		hasher:    d.Hasher,
		codec:     d.Codec,
		mailer:    d.Mailer,
		events:    d.Events,
		tx:        d.Tx,
		log:       log,
		sessions:  &sessions{ledger: d.Ledger, cache: d.Cache, log: log, now: cfg.Now},
		resets:    resetTokens{cache: d.Cache},
		cache:     d.Cache,
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (u *Usecase) Register(ctx context.Context, name, email, password string) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer span.End()
	defer func() { observe("register", err) }()

	email = normalizeEmail(email)
	if _, err := u.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	role, err := u.users.FindRoleByName(ctx, u.cfg.DefaultRole)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			u.log.Error("default role missing", zap.String("role", u.cfg.DefaultRole))
			return nil, ErrConfiguration
		}
		return nil, fmt.Errorf("find role: %w", err)
	}

	hash, err := u.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := u.cfg.Now()
	verification := uuid.NewString()
	nu := &user.User{
		Email:             email,
		Name:              strings.TrimSpace(name),
		PasswordHash:      hash,
		IsActive:          true,
		VerificationToken: &verification,
		Roles:             []string{role.Name},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var (
		sess *Session
		rt   *domainauth.RefreshToken
	)
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.Create(ctx, nu); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return ErrConflict
			}
			return fmt.Errorf("create user: %w", err)
		}
		var err error
		sess, rt, err = u.issue(ctx, nu)
		return err
	})
	if err != nil {
		return nil, err
	}
	u.sessions.remember(ctx, rt)
	span.SetAttributes(attribute.Int64("user.id", nu.ID))

	if u.mailer != nil {
		if err := u.mailer.SendVerificationEmail(ctx, nu.Email, verification); err != nil {
			u.log.Warn("verification email not queued", zap.Int64("user_id", nu.ID), zap.Error(err))
		}
	}
	return sess, nil
}

func (u *Usecase) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()
	defer func() { observe("login", err) }()

	email = normalizeEmail(email)
	usr, err := u.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		u.hasher.Verify(u.dummyHash, password)
		u.loginFailed(ctx, email, nil)
		return nil, ErrInvalidCredentials
	}
	if !u.hasher.Verify(usr.PasswordHash, password) {
		u.loginFailed(ctx, email, &usr.ID)
		return nil, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return nil, ErrAccountDisabled
	}
	if _, err := u.cache.Delete(ctx, LoginFailuresPrefix+email); err != nil {
		u.log.Warn("reset login failures", zap.Error(err))
	}

	var (
		sess *Session
		rt   *domainauth.RefreshToken
	)
	if err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		sess, rt, err = u.issue(ctx, usr)
		return err
	}); err != nil {
		return nil, err
	}
	u.sessions.remember(ctx, rt)
	span.SetAttributes(attribute.Int64("user.id", usr.ID))
	return sess, nil
}

func (u *Usecase) loginFailed(ctx context.Context, email string, userID *int64) {
	n, err := u.cache.Incr(ctx, LoginFailuresPrefix+email, u.cfg.LoginFailureWindow)
	if err != nil {
		u.log.Warn("count login failure", zap.Error(err))
		return
	}
	if n == int64(u.cfg.LoginFailureThreshold) {
		u.events.LogEvent(ctx, domainauth.EventRepeatedLoginFailures, userID, map[string]any{
			"email":    email,
			"attempts": n,
			"window":   u.cfg.LoginFailureWindow.String(),
		})
	}
}

// RefreshTokens rotates a refresh token. Every failure except reuse comes
// back as ErrInvalidRefreshToken so callers cannot tell which check failed.
func (u *Usecase) RefreshTokens(ctx context.Context, raw string) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.RefreshTokens")
	defer span.End()
	defer func() { observe("refresh", err) }()

	claims, err := u.codec.VerifyRefresh(raw)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	jti := claims.ID
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	span.SetAttributes(attribute.String("token.jti", jti))

	if u.sessions.revoked(ctx, jti) {
		u.reuseDetected(ctx, userID, jti, "revoked")
		return nil, ErrTokenReuseDetected
	}
	if _, err := uuid.Parse(jti); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	rec, err := u.sessions.lookup(ctx, jti)
	if err != nil {
		obs.WithTrace(ctx, u.log).Error("refresh lookup", zap.String("jti", jti), zap.Error(err))
		return nil, ErrInvalidRefreshToken
	}
	if rec == nil {
		switch {
		case u.sessions.revoked(ctx, jti):
			u.reuseDetected(ctx, userID, jti, "revoked")
			return nil, ErrTokenReuseDetected
		case u.sessions.revokedInLedger(ctx, jti):
			u.reuseDetected(ctx, userID, jti, "ledger")
			return nil, ErrTokenReuseDetected
		}
		return nil, ErrInvalidRefreshToken
	}
	if rec.UserID != userID || !u.cfg.Now().Before(rec.ExpiresAt) ||
		!authn.TokenHashEqual(raw, rec.TokenHash) {
		return nil, ErrInvalidRefreshToken
	}

	usr, err := u.users.FindByID(ctx, userID)
	if err != nil || !usr.IsActive {
		return nil, ErrInvalidRefreshToken
	}

	var (
		sess *Session
		rt   *domainauth.RefreshToken
	)
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := u.ledger.Revoke(ctx, jti)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTokenReuseDetected
		}
		sess, rt, err = u.issue(ctx, usr)
		return err
	})
	switch {
	case errors.Is(err, ErrTokenReuseDetected):
		// lost the conditional revoke to a concurrent presentation
		u.reuseDetected(ctx, userID, jti, "concurrent")
		return nil, ErrTokenReuseDetected
	case err != nil:
		obs.WithTrace(ctx, u.log).Error("rotate refresh", zap.String("jti", jti), zap.Error(err))
		return nil, ErrInvalidRefreshToken
	}

	u.sessions.mark(ctx, jti, rec.ExpiresAt)
	u.sessions.remember(ctx, rt)
	rotationsTotal.Inc()
	return sess, nil
}

func (u *Usecase) reuseDetected(ctx context.Context, userID int64, jti, via string) {
	u.events.LogEvent(ctx, domainauth.EventRefreshTokenReuse, &userID, map[string]any{
		"jti": jti,
		"via": via,
	})
}

// Logout never fails. Only a call that actually flips the ledger row writes
// the marker and logs, so repeating it changes nothing.
func (u *Usecase) Logout(ctx context.Context, raw string) error {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	defer span.End()

	if raw == "" {
		return nil
	}
	claims, err := u.codec.Decode(raw)
	if err != nil || claims.ID == "" {
		return nil
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil
	}

	ok, err := u.ledger.Revoke(ctx, claims.ID)
	if err != nil {
		u.log.Warn("logout revoke", zap.String("jti", claims.ID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	now := u.cfg.Now()
	exp := now.Add(u.codec.RefreshTTL())
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(exp) {
		exp = claims.ExpiresAt.Time
	}
	u.sessions.mark(ctx, claims.ID, exp)
	u.log.Info("session ended", zap.String("jti", claims.ID), zap.String("sub", claims.Subject))
	observe("logout", nil)
	return nil
}

func (u *Usecase) ChangePassword(ctx context.Context, userID int64, current, next string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.ChangePassword")
	defer span.End()
	defer func() { observe("change_password", err) }()

	usr, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !u.hasher.Verify(usr.PasswordHash, current) {
		return ErrInvalidCurrentPassword
	}
	hash, err := u.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	revoked, err := u.replacePassword(ctx, userID, hash)
	if err != nil {
		return err
	}
	u.events.LogEvent(ctx, domainauth.EventPasswordChanged, &userID, map[string]any{
		"revoked_sessions": revoked,
	})
	return nil
}

// replacePassword stores the hash and revokes every session of the user.
func (u *Usecase) replacePassword(ctx context.Context, userID int64, hash string) (int, error) {
	var rows []domainauth.RefreshToken
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.Update(ctx, userID, user.Patch{PasswordHash: &hash}); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		var err error
		rows, err = u.ledger.RevokeAllByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	u.sessions.markAll(ctx, rows)
	return len(rows), nil
}

// ForgotPassword always succeeds. Both paths mint and store a token; an
// unknown email stores an inert record that ResetPassword refuses, and only
// the mail enqueue differs.
func (u *Usecase) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "auth.ForgotPassword")
	defer span.End()
	defer observe("forgot_password", nil)

	email = normalizeEmail(email)
	token, err := authn.GenerateToken(32)
	if err != nil {
		u.log.Error("generate reset token", zap.Error(err))
		return nil
	}
	expiresAt := u.cfg.Now().Add(u.cfg.ResetTTL)

	usr, err := u.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		u.log.Warn("forgot password lookup", zap.Error(err))
	}

	rec := resetRecord{ExpiresAt: expiresAt}
	if usr != nil && err == nil {
		rec.UserID, rec.Email = usr.ID, usr.Email
	}
	if err := u.resets.put(ctx, token, rec, u.cfg.ResetTTL); err != nil {
		u.log.Warn("store reset token", zap.Int64("user_id", rec.UserID), zap.Error(err))
		return nil
	}
	if rec.UserID == 0 {
		return nil
	}
	if u.mailer != nil {
		if err := u.mailer.SendPasswordResetEmail(ctx, usr.Email, token); err != nil {
			u.log.Warn("reset email not queued", zap.Int64("user_id", usr.ID), zap.Error(err))
		}
	}
	return nil
}

func (u *Usecase) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.ResetPassword")
	defer span.End()
	defer func() { observe("reset_password", err) }()

	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	rec, err := u.resets.get(ctx, token)
	if err != nil {
		u.log.Warn("reset token lookup", zap.Error(err))
		return ErrInvalidOrExpiredToken
	}
	if rec == nil {
		return ErrInvalidOrExpiredToken
	}
	if !u.cfg.Now().Before(rec.ExpiresAt) {
		_, _ = u.resets.claim(ctx, token)
		return ErrInvalidOrExpiredToken
	}
	claimed, err := u.resets.claim(ctx, token)
	if err != nil || !claimed || rec.UserID == 0 {
		return ErrInvalidOrExpiredToken
	}

	hash, err := u.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	revoked, err := u.replacePassword(ctx, rec.UserID, hash)
	if err != nil {
		u.log.Warn("reset password", zap.Int64("user_id", rec.UserID), zap.Error(err))
		return ErrInvalidOrExpiredToken
	}
	u.events.LogEvent(ctx, domainauth.EventPasswordReset, &rec.UserID, map[string]any{
		"revoked_sessions": revoked,
	})
	return nil
}

func (u *Usecase) VerifyEmail(ctx context.Context, token string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.VerifyEmail")
	defer span.End()
	defer func() { observe("verify_email", err) }()

	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	usr, err := u.users.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("find by verification token: %w", err)
	}
	verified := true
	if err := u.users.Update(ctx, usr.ID, user.Patch{IsEmailVerified: &verified, ClearVerificationToken: true}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (u *Usecase) Me(ctx context.Context, userID int64) (*user.User, error) {
	usr, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return usr, nil
}

func (u *Usecase) ParseAccess(token string) (int64, error) {
	cl, err := u.codec.VerifyAccess(token)
	if err != nil {
		return 0, err
	}
	id, err := cl.UserID()
	if err != nil {
		return 0, authn.ErrTokenInvalid
	}
	return id, nil
}

// issue signs a pair and writes the ledger row. The cache is left to the
// caller, after any surrounding transaction has committed.
func (u *Usecase) issue(ctx context.Context, usr *user.User) (*Session, *domainauth.RefreshToken, error) {
	var (
		access, refresh string
		ac              *authn.AccessClaims
		rc              *authn.RefreshClaims
		g               errgroup.Group
	)
	g.Go(func() error {
		var err error
		access, ac, err = u.codec.SignAccess(usr.ID, usr.Email, usr.Roles)
		return err
	})
	g.Go(func() error {
		var err error
		refresh, rc, err = u.codec.SignRefresh(usr.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("sign tokens: %w", err)
	}

	rt := &domainauth.RefreshToken{
		Jti:       rc.ID,
		UserID:    usr.ID,
		TokenHash: authn.HashToken(refresh),
		ExpiresAt: rc.ExpiresAt.Time,
	}
	if err := u.ledger.Create(ctx, rt); err != nil {
		return nil, nil, fmt.Errorf("save refresh: %w", err)
	}

	return &Session{
		User:             usr,
		AccessToken:      access,
		AccessExpiresAt:  ac.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: rt.ExpiresAt,
	}, rt, nil
}

type noTx struct{}

func (noTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
