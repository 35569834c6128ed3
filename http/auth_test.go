package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basebuzz/auth"
	"basebuzz/domain"
)

func TestWalletConnect(t *testing.T) {
	ts := newTestServer(t, Config{})
	w := newTestWallet(t)

	rec := ts.connect(t, w)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res walletConnectResponse
	decode(t, rec, &res)
	assert.True(t, res.Authenticated)
	assert.Equal(t, domain.SchemeWalletToken, res.Scheme)
	assert.Equal(t, w.address, res.WalletAddress)
	assert.Equal(t, auth.DefaultChainIDs[0], res.ChainID)
	assert.NotEmpty(t, res.Token)
	require.NotNil(t, res.ExpiresAt)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	for _, name := range []string{auth.WalletTokenCookie, auth.WalletSessionCookie} {
		c, ok := cookies[name]
		require.True(t, ok, name)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, "/", c.Path)
		assert.Greater(t, c.MaxAge, 0)
		assert.False(t, c.Secure)
	}
	assert.Equal(t, res.Token, cookies[auth.WalletTokenCookie].Value)

	// Connecting again with the same wallet signs into the same user.
	rec = ts.connect(t, w)
	require.Equal(t, http.StatusOK, rec.Code)
	var again walletConnectResponse
	decode(t, rec, &again)
	assert.Equal(t, res.User.ID, again.User.ID)
}

func TestWalletConnectSecureCookies(t *testing.T) {
	ts := newTestServer(t, Config{IsProd: true})
	rec := ts.connect(t, newTestWallet(t))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.True(t, c.Secure, c.Name)
	}
}

func TestWalletConnectRejects(t *testing.T) {
	ts := newTestServer(t, Config{})
	w := newTestWallet(t)

	t.Run("invalid address", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/auth/nonce?address=nope", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported chain", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address+"&chain_id=1", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Chain 1 is not supported.", errorMessage(t, rec))
	})

	t.Run("malformed chain", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address+"&chain_id=base", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no pending nonce", func(t *testing.T) {
		rec := ts.do(t, "POST", "/api/auth/wallet-connect", walletConnectRequest{
			Address:   w.address,
			Signature: w.sign(t, "anything"),
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signed by another wallet", func(t *testing.T) {
		rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var nonce nonceResponse
		decode(t, rec, &nonce)

		rec = ts.do(t, "POST", "/api/auth/wallet-connect", walletConnectRequest{
			Address:   w.address,
			Signature: newTestWallet(t).sign(t, nonce.Message),
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// The nonce was used up by the failed attempt.
		rec = ts.do(t, "POST", "/api/auth/wallet-connect", walletConnectRequest{
			Address:   w.address,
			Signature: w.sign(t, nonce.Message),
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/wallet-connect", nil)
		rec := httptest.NewRecorder()
		ts.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWalletConnectJunkDoesNotCancelSignIn(t *testing.T) {
	ts := newTestServer(t, Config{})
	w := newTestWallet(t)

	rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var nonce nonceResponse
	decode(t, rec, &nonce)

	rec = ts.do(t, "POST", "/api/auth/wallet-connect", walletConnectRequest{Address: w.address, Signature: "0xdead"}, "")
	require.NotEqual(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "POST", "/api/auth/wallet-connect", walletConnectRequest{
		Address:   w.address,
		Signature: w.sign(t, nonce.Message),
		ChainID:   nonce.ChainID,
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSessionEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, "GET", "/api/auth/session", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	conn := ts.connect(t, newTestWallet(t))
	require.Equal(t, http.StatusOK, conn.Code)

	// Each wallet cookie alone is enough.
	for _, c := range conn.Result().Cookies() {
		req := httptest.NewRequest("GET", "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		rec := httptest.NewRecorder()
		ts.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var session domain.Session
		decode(t, rec, &session)
		assert.True(t, session.Authenticated, c.Name)
		require.NotNil(t, session.User)
		if c.Name == auth.WalletSessionCookie {
			assert.Equal(t, domain.SchemeWalletSession, session.Scheme)
		} else {
			assert.Equal(t, domain.SchemeWalletToken, session.Scheme)
		}
	}
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, Config{})
	token, _ := ts.login(t)

	rec := ts.do(t, "POST", "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"successfully logged out"}`, rec.Body.String())

	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
		cleared[c.Name] = true
	}
	assert.True(t, cleared[auth.ProviderSessionCookie])
	assert.True(t, cleared[auth.WalletTokenCookie])
	assert.True(t, cleared[auth.WalletSessionCookie])

	// The old token no longer works.
	rec = ts.do(t, "GET", "/api/user", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out anonymously is fine.
	rec = ts.do(t, "POST", "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimit: RateLimitConfig{RPS: 0.001, Burst: 2}})
	w := newTestWallet(t)

	for i := 0; i < 2; i++ {
		rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address, nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Other endpoints are not limited.
	rec = ts.do(t, "GET", "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
