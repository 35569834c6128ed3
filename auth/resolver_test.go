package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basebuzz/domain"
)

type resolverFixture struct {
	users     *memUsers
	tokens    *WalletTokens
	sessions  *WalletSessions
	resolver  *Resolver
	providers *ProviderSessions
}

func newResolverFixture(t *testing.T) *resolverFixture {
	keys := testKeys(t)
	f := &resolverFixture{
		users:     newMemUsers(),
		tokens:    NewWalletTokens(keys.WalletToken, time.Hour),
		sessions:  NewWalletSessions(keys.WalletSession, time.Hour),
		providers: NewProviderSessions(ProviderConfig{JWTSecret: "provider-secret"}),
	}
	f.resolver = NewResolver(f.users, f.providers, f.tokens, f.sessions)
	return f
}

func (f *resolverFixture) token(t *testing.T, u *domain.User) string {
	token, _, err := f.tokens.Issue(u.WalletAddress, 8453, u.SessionVersion)
	require.NoError(t, err)
	return token
}

func (f *resolverFixture) session(t *testing.T, u *domain.User) string {
	value, _, err := f.sessions.Encode(WalletSession{
		Address:     u.WalletAddress,
		ChainID:     84532,
		ConnectedAt: time.Now(),
		Version:     u.SessionVersion,
	})
	require.NoError(t, err)
	return value
}

func request(cookies map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	for name, value := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r
}

func TestResolveAnonymous(t *testing.T) {
	f := newResolverFixture(t)
	s := f.resolver.Resolve(request(nil))
	assert.False(t, s.Authenticated)
	assert.Nil(t, s.User)
}

func TestResolveWalletToken(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	s := f.resolver.Resolve(request(map[string]string{WalletTokenCookie: f.token(t, u)}))
	require.True(t, s.Authenticated)
	assert.Equal(t, domain.SchemeWalletToken, s.Scheme)
	assert.Equal(t, u.ID, s.UserID())
	assert.Equal(t, int64(8453), s.ChainID)
	require.NotNil(t, s.ExpiresAt)

	r := request(nil)
	r.Header.Set("Authorization", "Bearer "+f.token(t, u))
	s = f.resolver.Resolve(r)
	assert.Equal(t, domain.SchemeWalletToken, s.Scheme)
}

func TestResolveWalletSession(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	s := f.resolver.Resolve(request(map[string]string{WalletSessionCookie: f.session(t, u)}))
	require.True(t, s.Authenticated)
	assert.Equal(t, domain.SchemeWalletSession, s.Scheme)
	assert.Equal(t, int64(84532), s.ChainID)
	assert.Equal(t, u.WalletAddress, s.WalletAddress)
}

func TestResolveFallsThroughInvalidCredentials(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	s := f.resolver.Resolve(request(map[string]string{
		ProviderSessionCookie: "garbage",
		WalletTokenCookie:     "garbage",
		WalletSessionCookie:   f.session(t, u),
	}))
	require.True(t, s.Authenticated)
	assert.Equal(t, domain.SchemeWalletSession, s.Scheme)

	s = f.resolver.Resolve(request(map[string]string{
		WalletTokenCookie:   "garbage",
		WalletSessionCookie: "garbage",
	}))
	assert.False(t, s.Authenticated)
}

func TestResolveBearerBehindBadTokenCookie(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	stale := f.token(t, u)
	require.NoError(t, f.users.BumpSessionVersion(context.Background(), u))

	for name, cookie := range map[string]string{"garbage": "garbage", "stale": stale} {
		r := request(map[string]string{WalletTokenCookie: cookie})
		r.Header.Set("Authorization", "Bearer "+f.token(t, u))
		s := f.resolver.Resolve(r)
		require.True(t, s.Authenticated, name)
		assert.Equal(t, domain.SchemeWalletToken, s.Scheme, name)
		assert.Equal(t, u.ID, s.UserID(), name)
	}
}

func TestResolveOrder(t *testing.T) {
	f := newResolverFixture(t)
	a := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	b := f.users.add("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")

	s := f.resolver.Resolve(request(map[string]string{
		WalletTokenCookie:   f.token(t, a),
		WalletSessionCookie: f.session(t, b),
	}))
	assert.Equal(t, domain.SchemeWalletToken, s.Scheme)
	assert.Equal(t, a.ID, s.UserID())
}

func TestResolveUnknownWallet(t *testing.T) {
	f := newResolverFixture(t)
	ghost := &domain.User{WalletAddress: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"}
	s := f.resolver.Resolve(request(map[string]string{WalletTokenCookie: f.token(t, ghost)}))
	assert.False(t, s.Authenticated)
}

func TestResolveAfterLogout(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	cookies := map[string]string{
		WalletTokenCookie:   f.token(t, u),
		WalletSessionCookie: f.session(t, u),
	}
	require.True(t, f.resolver.Resolve(request(cookies)).Authenticated)

	require.NoError(t, f.users.BumpSessionVersion(context.Background(), u))
	assert.False(t, f.resolver.Resolve(request(cookies)).Authenticated)
}

func TestResolveProviderSession(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	claims := ProviderClaims{
		Email:        "ada@example.com",
		UserMetadata: map[string]interface{}{"wallet_address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "provider-user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	cookies := map[string]string{
		ProviderSessionCookie: providerToken(t, "provider-secret", claims),
		WalletTokenCookie:     "garbage",
	}

	s := f.resolver.Resolve(request(cookies))
	require.True(t, s.Authenticated)
	assert.Equal(t, domain.SchemeProviderSession, s.Scheme)
	assert.Equal(t, "provider-user-1", s.ProviderUserID)
	assert.Equal(t, "ada@example.com", s.Email)
	assert.Equal(t, u.ID, s.UserID())

	// The wallet in the metadata got linked, the next lookup goes by provider id.
	linked, err := f.users.ByProviderUserID(context.Background(), "provider-user-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, linked.ID)

	t.Run("without account", func(t *testing.T) {
		claims.Subject = "provider-user-2"
		claims.UserMetadata = nil
		s := f.resolver.Resolve(request(map[string]string{
			ProviderSessionCookie: providerToken(t, "provider-secret", claims),
		}))
		require.True(t, s.Authenticated)
		assert.Nil(t, s.User)
		assert.Equal(t, "provider-user-2", s.ProviderUserID)
	})

	t.Run("disabled", func(t *testing.T) {
		resolver := NewResolver(f.users, NewProviderSessions(ProviderConfig{}), f.tokens, f.sessions)
		s := resolver.Resolve(request(map[string]string{
			ProviderSessionCookie: providerToken(t, "provider-secret", claims),
			WalletTokenCookie:     f.token(t, u),
		}))
		assert.Equal(t, domain.SchemeWalletToken, s.Scheme)
	})
}

func TestMiddlewareStoresSession(t *testing.T) {
	f := newResolverFixture(t)
	u := f.users.add("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	var got *domain.Session
	h := f.resolver.Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSession(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), request(map[string]string{WalletTokenCookie: f.token(t, u)}))
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.UserID())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/images/post/1/a.png", nil))
	assert.False(t, got.Authenticated)
}
