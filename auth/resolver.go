package auth

import (
	"context"
	"net/http"
	"strings"

	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
)

// Resolver decides who the caller of a request is. It checks the provider session,
// the wallet token and the wallet session, in that order. The first credential that
// is present and valid wins; an invalid one falls through to the next.
type Resolver struct {
	users     domain.UserService
	providers *ProviderSessions
	tokens    *WalletTokens
	sessions  *WalletSessions
}

func NewResolver(us domain.UserService, ps *ProviderSessions, wt *WalletTokens, ws *WalletSessions) *Resolver {
	return &Resolver{
		users:     us,
		providers: ps,
		tokens:    wt,
		sessions:  ws,
	}
}

// Resolve returns the session of r. It never fails, a request without a usable
// credential gets an anonymous session.
func (res *Resolver) Resolve(r *http.Request) *domain.Session {
	ctx := r.Context()
	if s := res.providerSession(ctx, r); s != nil {
		return s
	}
	if s := res.walletToken(ctx, r); s != nil {
		return s
	}
	if s := res.walletSession(ctx, r); s != nil {
		return s
	}
	return &domain.Session{}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (res *Resolver) providerSession(ctx context.Context, r *http.Request) *domain.Session {
	token := cookieValue(r, ProviderSessionCookie)
	if token == "" || !res.providers.Enabled() {
		return nil
	}
	l := logger.Ctx(ctx)
	claims, err := res.providers.Parse(token)
	if err != nil {
		l.Debug().Err(err).Str(logger.FieldScheme, string(domain.SchemeProviderSession)).Msg("credential rejected")
		return nil
	}
	s := &domain.Session{
		Authenticated:  true,
		Scheme:         domain.SchemeProviderSession,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		s.ExpiresAt = &t
	}

	// Look the user up by provider id first, then by the wallet in the metadata.
	user, err := res.users.ByProviderUserID(ctx, claims.Subject)
	if err == nil {
		s.User = user
		s.WalletAddress = user.WalletAddress
		return s
	}
	if errs.ErrorCode(err) != errs.ENOTFOUND {
		l.Error().Err(err).Msg("err looking up provider user")
		return s
	}
	address, err := NormalizeAddress(claims.WalletAddress())
	if err != nil {
		return s
	}
	s.WalletAddress = address
	user, err = res.users.ByWalletAddress(ctx, address)
	if err != nil {
		if errs.ErrorCode(err) != errs.ENOTFOUND {
			l.Error().Err(err).Msg("err looking up provider wallet")
		}
		return s
	}
	if err := res.users.LinkProvider(ctx, user, claims.Subject, claims.Email); err != nil {
		l.Warn().Err(err).Int(logger.FieldUserID, user.ID).Msg("err linking provider user")
	}
	s.User = user
	return s
}

// walletToken tries the token cookie, then the bearer header. A cookie that fails
// to verify does not hide a valid bearer token sent along with it.
func (res *Resolver) walletToken(ctx context.Context, r *http.Request) *domain.Session {
	cookie, bearer := cookieValue(r, WalletTokenCookie), bearerToken(r)
	if s := res.walletTokenSession(ctx, cookie); s != nil {
		return s
	}
	if bearer == cookie {
		return nil
	}
	return res.walletTokenSession(ctx, bearer)
}

func (res *Resolver) walletTokenSession(ctx context.Context, token string) *domain.Session {
	if token == "" {
		return nil
	}
	claims, err := res.tokens.Parse(token)
	if err != nil {
		lg := logger.Ctx(ctx)
		lg.Debug().Err(err).Str(logger.FieldScheme, string(domain.SchemeWalletToken)).Msg("credential rejected")
		return nil
	}
	user := res.walletUser(ctx, claims.Subject, claims.Version)
	if user == nil {
		return nil
	}
	expiresAt := claims.ExpiresAt.Time
	return &domain.Session{
		Authenticated: true,
		Scheme:        domain.SchemeWalletToken,
		WalletAddress: user.WalletAddress,
		ChainID:       claims.ChainID,
		ExpiresAt:     &expiresAt,
		User:          user,
	}
}

func (res *Resolver) walletSession(ctx context.Context, r *http.Request) *domain.Session {
	value := cookieValue(r, WalletSessionCookie)
	if value == "" {
		return nil
	}
	ws, err := res.sessions.Decode(value)
	if err != nil {
		lg := logger.Ctx(ctx)
		lg.Debug().Err(err).Str(logger.FieldScheme, string(domain.SchemeWalletSession)).Msg("credential rejected")
		return nil
	}
	user := res.walletUser(ctx, ws.Address, ws.Version)
	if user == nil {
		return nil
	}
	expiresAt := ws.ConnectedAt.Add(res.sessions.ttl)
	return &domain.Session{
		Authenticated: true,
		Scheme:        domain.SchemeWalletSession,
		WalletAddress: user.WalletAddress,
		ChainID:       ws.ChainID,
		ExpiresAt:     &expiresAt,
		User:          user,
	}
}

// walletUser returns the user owning address, or nil if there is none or
// the credential was issued before the user's last logout.
func (res *Resolver) walletUser(ctx context.Context, address string, version int) *domain.User {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil
	}
	user, err := res.users.ByWalletAddress(ctx, address)
	if err != nil {
		if errs.ErrorCode(err) != errs.ENOTFOUND {
			lg := logger.Ctx(ctx)
			lg.Error().Err(err).Msg("err looking up wallet user")
		}
		return nil
	}
	if user.SessionVersion != version {
		return nil
	}
	return user
}
