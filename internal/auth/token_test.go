package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T, clk *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(CodecConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     10 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		Issuer:        "storefront",
		Now:           clk.Now,
	})
	require.NoError(t, err)
	return c
}

func TestNewCodec_RequiresSecrets(t *testing.T) {
	t.Parallel()
	_, err := NewCodec(CodecConfig{AccessSecret: []byte("a")})
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestCodec_AccessRoundTrip(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)

	tok, issued, err := c.SignAccess(42, "a@x.com", []string{"customer"})
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	got, err := c.VerifyAccess(tok)
	require.NoError(t, err)
	id, err := got.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, []string{"customer"}, got.Roles)
	assert.Equal(t, issued.ExpiresAt.Unix(), clk.t.Add(10*time.Minute).Unix())
}

func TestCodec_RefreshCarriesUniqueJti(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clk)

	t1, c1, err := c.SignRefresh(7)
	require.NoError(t, err)
	t2, c2, err := c.SignRefresh(7)
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)
	assert.NotEqual(t, c1.ID, c2.ID)

	got, err := c.VerifyRefresh(t1)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, got.ID)
	assert.Equal(t, "7", got.Subject)
}

func TestCodec_ExpiredIsDistinctFromInvalid(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clk)

	access, _, err := c.SignAccess(1, "a@x.com", nil)
	require.NoError(t, err)
	refresh, _, err := c.SignRefresh(1)
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)
	_, err = c.VerifyAccess(access)
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = c.VerifyRefresh(refresh)
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)
	_, err = c.VerifyRefresh(refresh)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestCodec_FamiliesAreNotInterchangeable(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clk)

	access, _, err := c.SignAccess(1, "a@x.com", nil)
	require.NoError(t, err)
	refresh, _, err := c.SignRefresh(1)
	require.NoError(t, err)

	_, err = c.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = c.VerifyAccess(refresh)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCodec_TamperedAndForeign(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clk)

	refresh, _, err := c.SignRefresh(1)
	require.NoError(t, err)

	parts := strings.Split(refresh, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = c.VerifyRefresh(tampered)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = c.VerifyRefresh("not-a-jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = c.VerifyRefresh("")
	require.ErrorIs(t, err, ErrTokenInvalid)

	// right secret, wrong algorithm
	none, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &RefreshClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID: "x", Subject: "1", Issuer: "storefront", ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
	}}).SignedString([]byte("refresh-secret"))
	require.NoError(t, err)
	_, err = c.VerifyRefresh(none)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCodec_ForgedExpiredTokenIsInvalid(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clk)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &RefreshClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID: "x", Subject: "1", Issuer: "storefront", ExpiresAt: jwt.NewNumericDate(clk.t.Add(-time.Hour)),
	}}).SignedString([]byte("someone-else"))
	require.NoError(t, err)

	_, err = c.VerifyRefresh(forged)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCodec_DecodeIgnoresValidity(t *testing.T) {
	t.Parallel()
	clk := &fakeClock{t: time.Now().UTC()}
	c := newTestCodec(t, clk)

	refresh, issued, err := c.SignRefresh(9)
	require.NoError(t, err)
	clk.Advance(365 * 24 * time.Hour)

	_, err = c.VerifyRefresh(refresh)
	require.ErrorIs(t, err, ErrTokenExpired)

	got, err := c.Decode(refresh)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	id, err := got.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	_, err = c.Decode("garbage")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestHashToken(t *testing.T) {
	t.Parallel()
	raw, err := GenerateToken(32)
	require.NoError(t, err)
	require.Len(t, raw, 43)

	h := HashToken(raw)
	assert.NotEqual(t, raw, h)
	assert.Equal(t, h, HashToken(raw))
	assert.True(t, TokenHashEqual(raw, h))
	assert.False(t, TokenHashEqual(raw+"x", h))
}
