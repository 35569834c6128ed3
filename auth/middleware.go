package auth

import (
	"net/http"
	"strings"

	"basebuzz/logger"
)

// Apply resolves the session of every request and stores it in the request context.
func (res *Resolver) Apply(next http.Handler) http.Handler {
	return res.ApplyFn(next.ServeHTTP)
}

func (res *Resolver) ApplyFn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Images are public, there is no need to know who asks for them.
		if strings.HasPrefix(r.URL.Path, "/images/") {
			next(w, r)
			return
		}
		session := res.Resolve(r)
		ctx := SetSession(r.Context(), session)
		if session.Authenticated {
			l := logger.Ctx(ctx).With().
				Str(logger.FieldScheme, string(session.Scheme)).
				Str(logger.FieldWallet, session.WalletAddress).
				Int(logger.FieldUserID, session.UserID()).
				Logger()
			ctx = logger.WithLogger(ctx, l)
		}
		next(w, r.WithContext(ctx))
	}
}
