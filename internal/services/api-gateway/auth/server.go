package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/torsoroso16/api-project/internal/api/authv1"
	"github.com/torsoroso16/api-project/internal/domain/user"
	"github.com/torsoroso16/api-project/internal/obs"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const DefaultCookieName = "refreshToken"

type Server struct {
	authv1.UnimplementedAuthServiceServer
	log      *zap.Logger
	uc       *Usecase
	validate *validator.Validate
	cookie   CookieOpts
}

type CookieOpts struct {
	Name   string
	Domain string
	Path   string
	Secure bool
	MaxAge time.Duration
}

type Opts struct {
	Logger *zap.Logger
	Cookie CookieOpts
}

func NewServer(uc *Usecase, o Opts) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	c := o.Cookie
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * 24 * time.Hour
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Server{
		log:      log.With(zap.String("component", "auth.grpc")),
		uc:       uc,
		validate: v,
		cookie:   c,
	}
}

func (s *Server) Register(ctx context.Context, req *authv1.RegisterRequest) (*authv1.AuthResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	sess, err := s.uc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, s.mapErr(ctx, err)
	}
	s.setRefreshCookie(ctx, sess.RefreshToken)
	return s.authResponse(sess), nil
}

func (s *Server) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.AuthResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	sess, err := s.uc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.mapErr(ctx, err)
	}
	s.setRefreshCookie(ctx, sess.RefreshToken)
	return s.authResponse(sess), nil
}

func (s *Server) Refresh(ctx context.Context, _ *authv1.Empty) (*authv1.AuthResponse, error) {
	sess, err := s.uc.RefreshTokens(ctx, s.refreshFromCtx(ctx))
	if err != nil {
		s.clearRefreshCookie(ctx)
		return nil, s.mapErr(ctx, err)
	}
	s.setRefreshCookie(ctx, sess.RefreshToken)
	return s.authResponse(sess), nil
}

func (s *Server) Logout(ctx context.Context, _ *authv1.Empty) (*authv1.MessageResponse, error) {
	_ = s.uc.Logout(ctx, s.refreshFromCtx(ctx))
	s.clearRefreshCookie(ctx)
	return ok("logged out"), nil
}

func (s *Server) ChangePassword(ctx context.Context, req *authv1.ChangePasswordRequest) (*authv1.MessageResponse, error) {
	uid, found := UserIDFromCtx(ctx)
	if !found {
		return nil, status.Error(codes.Unauthenticated, "auth required")
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.uc.ChangePassword(ctx, uid, req.CurrentPassword, req.NewPassword); err != nil {
		return nil, s.mapErr(ctx, err)
	}
	s.clearRefreshCookie(ctx)
	return ok("password changed"), nil
}

func (s *Server) ForgotPassword(ctx context.Context, req *authv1.ForgotPasswordRequest) (*authv1.MessageResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	_ = s.uc.ForgotPassword(ctx, req.Email)
	return ok("if the email is registered, a reset link has been sent"), nil
}

func (s *Server) ResetPassword(ctx context.Context, req *authv1.ResetPasswordRequest) (*authv1.MessageResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.uc.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		return nil, s.mapErr(ctx, err)
	}
	return ok("password has been reset"), nil
}

func (s *Server) VerifyEmail(ctx context.Context, req *authv1.VerifyEmailRequest) (*authv1.MessageResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.uc.VerifyEmail(ctx, req.Token); err != nil {
		return nil, s.mapErr(ctx, err)
	}
	return ok("email verified"), nil
}

func (s *Server) Me(ctx context.Context, _ *authv1.Empty) (*authv1.User, error) {
	uid, found := UserIDFromCtx(ctx)
	if !found {
		return nil, status.Error(codes.Unauthenticated, "auth required")
	}
	u, err := s.uc.Me(ctx, uid)
	if err != nil {
		return nil, s.mapErr(ctx, err)
	}
	return toUser(u), nil
}

func ok(msg string) *authv1.MessageResponse {
	return &authv1.MessageResponse{Success: true, Message: msg}
}

func (s *Server) authResponse(sess *Session) *authv1.AuthResponse {
	return &authv1.AuthResponse{
		AccessToken: sess.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(sess.AccessExpiresAt.Sub(s.uc.cfg.Now()).Round(time.Second).Seconds()),
		User:        toUser(sess.User),
	}
}

func toUser(u *user.User) *authv1.User {
	if u == nil {
		return nil
	}
	return &authv1.User{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		Roles:           append([]string{}, u.Roles...),
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return status.Error(codes.InvalidArgument, "invalid request")
	}
	fe := verrs[0]
	return status.Error(codes.InvalidArgument, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
}

// mapErr turns engine errors into statuses. Anything unrecognised is logged
// and reported as a bare internal error.
func (s *Server) mapErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRefreshToken):
		return status.Error(codes.Unauthenticated, ErrInvalidRefreshToken.Error())
	case errors.Is(err, ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrAccountDisabled):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrInvalidCurrentPassword), errors.Is(err, ErrInvalidOrExpiredToken):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, ErrConfiguration):
		obs.WithTrace(ctx, s.log).Error("misconfigured", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	default:
		obs.WithTrace(ctx, s.log).Error("request failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *Server) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookie.Name,
		Value:    value,
		Path:     s.cookie.Path,
		Domain:   s.cookie.Domain,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

func (s *Server) setRefreshCookie(ctx context.Context, raw string) {
	c := s.refreshCookie(raw, int(s.cookie.MaxAge.Seconds()))
	_ = grpc.SetHeader(ctx, metadata.Pairs("set-cookie", c.String()))
}

func (s *Server) clearRefreshCookie(ctx context.Context) {
	c := s.refreshCookie("", -1)
	_ = grpc.SetHeader(ctx, metadata.Pairs("set-cookie", c.String()))
}

// refreshFromCtx finds the refresh token in the forwarded cookie header,
// a plain cookie header, or x-refresh-token for non-browser clients.
func (s *Server) refreshFromCtx(ctx context.Context) string {
	md, found := metadata.FromIncomingContext(ctx)
	if !found {
		return ""
	}
	for _, key := range []string{"grpcgateway-cookie", "cookie"} {
		for _, v := range md.Get(key) {
			if raw := parseCookie(v, s.cookie.Name); raw != "" {
				return raw
			}
		}
	}
	if vals := md.Get("x-refresh-token"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func parseCookie(header, name string) string {
	r := http.Request{Header: http.Header{"Cookie": []string{header}}}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func bearer(ctx context.Context) string {
	md, found := metadata.FromIncomingContext(ctx)
	if !found {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}
