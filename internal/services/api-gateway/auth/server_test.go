package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torsoroso16/api-project/internal/api/authv1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stack struct {
	h      *harness
	client authv1.AuthServiceClient
	http   *httptest.Server
}

func newStack(t *testing.T, rl RateLimitConfig) *stack {
	t.Helper()
	h := newHarness(t)

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		UnaryRateLimitInterceptor(rl),
		UnaryAuthInterceptor(h.uc.ParseAccess),
	))
	authv1.RegisterAuthServiceServer(srv, NewServer(h.uc, Opts{
		Logger: zap.NewNop(),
		Cookie: CookieOpts{Secure: true},
	}))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := authv1.NewAuthServiceClient(conn)

	mux := runtime.NewServeMux()
	require.NoError(t, RegisterGateway(mux, client))
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)

	return &stack{h: h, client: client, http: hs}
}

func (s *stack) post(t *testing.T, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := s.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func refreshCookieOf(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", DefaultCookieName)
	return nil
}

func TestGateway_RegisterSetsHardenedCookie(t *testing.T) {
	s := newStack(t, RateLimitConfig{})

	resp := s.post(t, "/v1/auth/register", `{"name":"A","email":"a@x.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body authv1.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "Bearer", body.TokenType)
	require.NotNil(t, body.User)
	assert.False(t, body.User.IsEmailVerified)

	c := refreshCookieOf(t, resp)
	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), c.MaxAge)
	assert.Equal(t, "/", c.Path)
	assert.NotContains(t, c.Value, body.AccessToken)
}

func TestGateway_RefreshRotatesAndRejectsReplay(t *testing.T) {
	s := newStack(t, RateLimitConfig{})
	reg := s.post(t, "/v1/auth/register", `{"name":"A","email":"a@x.com","password":"secret123"}`)
	first := refreshCookieOf(t, reg)

	rot := s.post(t, "/v1/auth/refresh", "", first)
	require.Equal(t, http.StatusOK, rot.StatusCode)
	second := refreshCookieOf(t, rot)
	assert.NotEqual(t, first.Value, second.Value)

	replay := s.post(t, "/v1/auth/refresh", "", first)
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode)
	cleared := refreshCookieOf(t, replay)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestGateway_LogoutAlwaysOK(t *testing.T) {
	s := newStack(t, RateLimitConfig{})

	resp := s.post(t, "/v1/auth/logout", "", &http.Cookie{Name: DefaultCookieName, Value: "garbage"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := refreshCookieOf(t, resp)
	assert.Empty(t, c.Value)

	var body authv1.MessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
}

func TestGateway_ErrorStatuses(t *testing.T) {
	s := newStack(t, RateLimitConfig{})
	s.post(t, "/v1/auth/register", `{"name":"A","email":"a@x.com","password":"secret123"}`)

	cases := []struct {
		name, path, body string
		want             int
	}{
		{"duplicate", "/v1/auth/register", `{"name":"A","email":"a@x.com","password":"secret123"}`, http.StatusConflict},
		{"bad email", "/v1/auth/register", `{"name":"A","email":"nope","password":"secret123"}`, http.StatusBadRequest},
		{"short password", "/v1/auth/register", `{"name":"A","email":"b@x.com","password":"short"}`, http.StatusBadRequest},
		{"malformed json", "/v1/auth/login", `{"email":`, http.StatusBadRequest},
		{"wrong password", "/v1/auth/login", `{"email":"a@x.com","password":"wrong-one"}`, http.StatusUnauthorized},
		{"unknown reset token", "/v1/auth/reset-password", `{"token":"x","newPassword":"longenough"}`, http.StatusBadRequest},
		{"forgot unknown", "/v1/auth/forgot-password", `{"email":"ghost@x.com"}`, http.StatusOK},
		{"change without auth", "/v1/auth/change-password", `{"currentPassword":"a","newPassword":"bbbbbbbb"}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.post(t, tc.path, tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestGRPC_MeRequiresBearer(t *testing.T) {
	s := newStack(t, RateLimitConfig{})
	ctx := context.Background()

	_, err := s.client.Me(ctx, &authv1.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	reg, err := s.client.Register(ctx, &authv1.RegisterRequest{Name: "A", Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+reg.AccessToken)
	me, err := s.client.Me(authed, &authv1.Empty{})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", me.Email)
	assert.Equal(t, []string{"customer"}, me.Roles)
}

func TestGRPC_RefreshFromHeaderMetadata(t *testing.T) {
	s := newStack(t, RateLimitConfig{})
	ctx := context.Background()

	var header metadata.MD
	_, err := s.client.Login(ctx, &authv1.LoginRequest{Email: "nobody@x.com", Password: "whatever"}, grpc.Header(&header))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = s.client.Register(ctx, &authv1.RegisterRequest{Name: "A", Email: "a@x.com", Password: "secret123"}, grpc.Header(&header))
	require.NoError(t, err)
	cookies := header.Get("set-cookie")
	require.Len(t, cookies, 1)
	raw := parseCookie(strings.SplitN(cookies[0], ";", 2)[0], DefaultCookieName)
	require.NotEmpty(t, raw)

	withToken := metadata.AppendToOutgoingContext(ctx, "x-refresh-token", raw)
	resp, err := s.client.Refresh(withToken, &authv1.Empty{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestRateLimit_PublicMethods(t *testing.T) {
	s := newStack(t, RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.client.ForgotPassword(ctx, &authv1.ForgotPasswordRequest{Email: "a@x.com"})
		require.NoError(t, err)
	}
	_, err := s.client.ForgotPassword(ctx, &authv1.ForgotPasswordRequest{Email: "a@x.com"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestRateLimit_ForwardedForFromUntrustedPeerIsIgnored(t *testing.T) {
	s := newStack(t, RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2})

	var throttled int
	for i := 0; i < 10; i++ {
		ctx := metadata.AppendToOutgoingContext(context.Background(), "x-forwarded-for", fmt.Sprintf("203.0.113.%d", i))
		_, err := s.client.Login(ctx, &authv1.LoginRequest{Email: "nobody@x.com", Password: "whatever"})
		if status.Code(err) == codes.ResourceExhausted {
			throttled++
		}
	}
	assert.Equal(t, 8, throttled)
}

func TestClientKey(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8"})
	require.NoError(t, err)

	from := func(ip string, xff ...string) context.Context {
		ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 5555}})
		if len(xff) > 0 {
			ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("x-forwarded-for", xff[0]))
		}
		return ctx
	}

	cases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no peer", context.Background(), ""},
		{"direct client", from("198.51.100.7"), "198.51.100.7"},
		{"direct client spoofing", from("198.51.100.7", "1.2.3.4"), "198.51.100.7"},
		{"trusted gateway", from("127.0.0.1", "1.2.3.4, 198.51.100.7"), "198.51.100.7"},
		{"trusted cidr", from("10.1.2.3", "198.51.100.9"), "198.51.100.9"},
		{"trusted without header", from("127.0.0.1"), "127.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, clientKey(tc.ctx, trusted))
		})
	}

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestMapErr_HidesInternalDetail(t *testing.T) {
	srv := NewServer(nil, Opts{})
	err := srv.mapErr(context.Background(), assert.AnError)
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())

	st, _ = status.FromError(srv.mapErr(context.Background(), ErrConfiguration))
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())

	st, _ = status.FromError(srv.mapErr(context.Background(), ErrTokenReuseDetected))
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "invalid or expired refresh token", st.Message())
}
