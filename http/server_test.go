package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"basebuzz/auth"
	"basebuzz/cache"
	"basebuzz/crud"
	"basebuzz/logger"
	"basebuzz/storage"
)

func init() {
	logger.Init(logger.Config{Level: "disabled"})
}

type testServer struct {
	*Server
	services *crud.Services
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := storage.NewLocalStorage(filepath.Join(dir, "images"))
	require.NoError(t, err)
	services, err := crud.NewServices(db,
		crud.WithUser(),
		crud.WithNotification(),
		crud.WithPost(),
		crud.WithFollow(cache.NoopFollowerCounts{}),
		crud.WithLike(),
		crud.WithListing(),
		crud.WithImage(store),
	)
	require.NoError(t, err)
	require.NoError(t, services.AutoMigrate())

	keys, err := auth.DeriveKeys("test-secret")
	require.NoError(t, err)
	walletCfg := auth.Config{Domain: "basebuzz.test"}.WithDefaults()
	tokens := auth.NewWalletTokens(keys.WalletToken, walletCfg.TokenTTL)
	sessions := auth.NewWalletSessions(keys.WalletSession, walletCfg.SessionTTL)
	resolver := auth.NewResolver(services.User, auth.NewProviderSessions(auth.ProviderConfig{}), tokens, sessions)
	connector := auth.NewConnector(walletCfg, services.User, auth.NewMemoryNonceStore(), tokens, sessions)

	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit = RateLimitConfig{RPS: 1000, Burst: 1000}
	}
	cfg.CSRFKey = keys.CSRF
	return &testServer{
		Server:   NewServer(cfg, services, store, resolver, connector),
		services: services,
	}
}

// do sends a json request, authenticated with token if it is set.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

type testWallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testWallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w testWallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// connect runs the wallet connect flow and returns the response.
func (ts *testServer) connect(t *testing.T, w testWallet) *httptest.ResponseRecorder {
	t.Helper()
	rec := ts.do(t, "GET", "/api/auth/nonce?address="+w.address, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var nonce nonceResponse
	decode(t, rec, &nonce)

	return ts.do(t, "POST", "/api/auth/wallet-connect", walletConnectRequest{
		Address:   w.address,
		Signature: w.sign(t, nonce.Message),
		ChainID:   nonce.ChainID,
	}, "")
}

// login connects a new wallet and returns its bearer token and user ID.
func (ts *testServer) login(t *testing.T) (string, int) {
	t.Helper()
	rec := ts.connect(t, newTestWallet(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res walletConnectResponse
	decode(t, rec, &res)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.User)
	return res.Token, res.User.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, "GET", "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, "GET", "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRequireAuth(t *testing.T) {
	ts := newTestServer(t, Config{})
	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/user"},
		{"POST", "/api/posts"},
		{"POST", "/api/posts/1/like"},
		{"POST", "/api/users/1/follow"},
		{"GET", "/api/notifications"},
		{"POST", "/api/listings"},
	} {
		rec := ts.do(t, tc.method, tc.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Config{ClientURL: "http://localhost:3000"})
	req := httptest.NewRequest("OPTIONS", "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCSRF(t *testing.T) {
	ts := newTestServer(t, Config{CSRFEnabled: true})

	// Cookie based writes need a token.
	rec := ts.do(t, "POST", "/api/posts", map[string]string{"content": "hi"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid CSRF token.", errorMessage(t, rec))

	// Bearer requests skip the check and reach auth.
	rec = ts.do(t, "POST", "/api/posts", map[string]string{"content": "hi"}, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Reads pass and hand out a token.
	rec = ts.do(t, "GET", "/api/auth/csrf", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-CSRF-Token"))
}

func TestCSRFTokenDisabled(t *testing.T) {
	ts := newTestServer(t, Config{})
	rec := ts.do(t, "GET", "/api/auth/csrf", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRun(t *testing.T) {
	ts := newTestServer(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Run(ctx, 0) }()
	cancel()
	assert.NoError(t, <-done)
}
