package auth

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/torsoroso16/api-project/internal/api/authv1"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey int

const userIDKey ctxKey = 1

func UserIDFromCtx(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

var publicFullMethods = map[string]bool{
	authv1.AuthService_Register_FullMethodName:       true,
	authv1.AuthService_Login_FullMethodName:          true,
	authv1.AuthService_Refresh_FullMethodName:        true,
	authv1.AuthService_Logout_FullMethodName:         true,
	authv1.AuthService_ForgotPassword_FullMethodName: true,
	authv1.AuthService_ResetPassword_FullMethodName:  true,
	authv1.AuthService_VerifyEmail_FullMethodName:    true,
}

func IsPublicMethod(fullMethod string) bool { return publicFullMethods[fullMethod] }

func UnaryAuthInterceptor(parse func(token string) (int64, error)) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if IsPublicMethod(info.FullMethod) {
			return next(ctx, req)
		}

		token := bearer(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		uid, err := parse(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return next(WithUserID(ctx, uid), req)
	}
}

type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
	// TrustedProxies lists peers (IPs or CIDRs) whose x-forwarded-for is
	// honoured. The in-process HTTP gateway dials over loopback.
	TrustedProxies []string
}

// ParseTrustedProxies accepts bare addresses as single-host prefixes.
func ParseTrustedProxies(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if p, err := netip.ParsePrefix(r); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(r)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", r, err)
		}
		out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
	}
	return out, nil
}

// peerLimiter hands out one token bucket per client address.
type peerLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

func newPeerLimiter(cfg RateLimitConfig) *peerLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerWindow
	}
	return &peerLimiter{
		limiters:    make(map[string]*rate.Limiter),
		limit:       rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}
}

func (p *peerLimiter) allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastCleanup) > 5*time.Minute {
		for k, l := range p.limiters {
			// a full bucket has been idle long enough to drop
			if l.Tokens() >= float64(p.burst) {
				delete(p.limiters, k)
			}
		}
		p.lastCleanup = time.Now()
	}

	l, found := p.limiters[key]
	if !found {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[key] = l
	}
	return l.Allow()
}

// UnaryRateLimitInterceptor throttles the public methods per client. A
// non-positive RequestsPerWindow disables it. Unparseable trusted proxies
// are dropped; config validation rejects them before this point.
func UnaryRateLimitInterceptor(cfg RateLimitConfig) grpc.UnaryServerInterceptor {
	if cfg.RequestsPerWindow <= 0 {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
			return next(ctx, req)
		}
	}
	pl := newPeerLimiter(cfg)
	trusted, _ := ParseTrustedProxies(cfg.TrustedProxies)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !IsPublicMethod(info.FullMethod) {
			return next(ctx, req)
		}
		key := clientKey(ctx, trusted)
		if key != "" && !pl.allow(key) {
			rateLimited.WithLabelValues(info.FullMethod).Inc()
			return nil, status.Error(codes.ResourceExhausted, "too many requests, try again later")
		}
		return next(ctx, req)
	}
}

// clientKey keys on the transport peer. Only a trusted proxy may name the
// client, and then only through the right-most x-forwarded-for hop, which is
// the one the proxy appended itself.
func clientKey(ctx context.Context, trusted []netip.Prefix) string {
	p, found := peer.FromContext(ctx)
	if !found || p.Addr == nil {
		return ""
	}
	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !trustedPeer(addr.Unmap(), trusted) {
		return host
	}
	md, _ := metadata.FromIncomingContext(ctx)
	xff := md.Get("x-forwarded-for")
	if len(xff) == 0 {
		return host
	}
	hops := strings.Split(xff[len(xff)-1], ",")
	if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
		return last
	}
	return host
}

func trustedPeer(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
