package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"basebuzz/auth"
	"basebuzz/crud"
	"basebuzz/domain"
	"basebuzz/errs"
	"basebuzz/logger"
	"basebuzz/storage"
)

// ShutdownTimeout is how long Run waits for in-flight requests when its context ends.
const ShutdownTimeout = 5 * time.Second

// Config holds the settings of the http layer.
type Config struct {
	IsProd      bool
	ClientURL   string
	CSRFEnabled bool
	CSRFKey     []byte
	RateLimit   RateLimitConfig
	// Proxies are the reverse proxies allowed to report the client IP.
	Proxies TrustedProxies
}

// Server provides the http functionality of this app, namely routing,
// request handling, and middleware. Credentials are resolved by the auth package
// before a handler runs; handlers then authorize and hand over to the crud services.
type Server struct {
	router  *mux.Router
	handler http.Handler
	cfg     Config

	us  domain.UserService
	ps  domain.PostService
	fs  domain.FollowService
	ls  domain.LikeService
	ns  domain.NotificationService
	lis domain.ListingService
	is  domain.ImageService

	store     storage.Storage
	resolver  *auth.Resolver
	connector *auth.Connector
	limiter   *ipRateLimiter
}

// NewServer returns a new instance of the server, registers all routes and gives
// their handlers access to the services passed in.
func NewServer(cfg Config, services *crud.Services, store storage.Storage, resolver *auth.Resolver, connector *auth.Connector) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cfg:       cfg,
		us:        services.User,
		ps:        services.Post,
		fs:        services.Follow,
		ls:        services.Like,
		ns:        services.Notification,
		lis:       services.Listing,
		is:        services.Image,
		store:     store,
		resolver:  resolver,
		connector: connector,
		limiter:   newIPRateLimiter(cfg.RateLimit),
	}

	// Images are served outside of the api.
	s.registerImageFileRoutes(s.router)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.registerAuthRoutes(api)
	s.registerUserRoutes(api)
	s.registerFollowRoutes(api)
	s.registerPostRoutes(api)
	s.registerLikeRoutes(api)
	s.registerImageRoutes(api)
	s.registerNotificationRoutes(api)
	s.registerListingRoutes(api)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND, "Not found."))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(&errs.ErrorResponse{Error: "Method not allowed."})
	})

	// Set up middleware that needs to run on every request.
	s.router.Use(setContentTypeJSON, s.resolver.Apply)

	var h http.Handler = s.router
	if cfg.CSRFEnabled {
		h = csrf.Protect(cfg.CSRFKey,
			csrf.Secure(cfg.IsProd),
			csrf.Path("/"),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.CookieName("basebuzz_csrf"),
			csrf.ErrorHandler(http.HandlerFunc(handleCSRFFailure)),
		)(h)
		h = skipCSRFForBearer(h)
	}
	if cfg.ClientURL != "" {
		h = handlers.CORS(
			handlers.AllowedOrigins([]string{cfg.ClientURL}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-CSRF-Token", "X-Request-ID"}),
			handlers.ExposedHeaders([]string{"X-Request-ID"}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}))(h)
	h = logger.Middleware(logger.L())(h)
	s.handler = cfg.Proxies.Middleware(h)
	return s
}

// ServeHTTP makes the server usable as an http.Handler, middleware included.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run listens and serves on the given port until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg := logger.L()
		lg.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg := logger.L()
	lg.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// The setContentTypeJSON middleware sets the content type to "application/json".
func setContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// skipCSRFForBearer exempts requests that authenticate with an Authorization header.
// Browsers never attach it on their own.
func skipCSRFForBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			r = csrf.UnsafeSkipCheck(r)
		}
		next.ServeHTTP(w, r)
	})
}

func handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	lg := logger.Ctx(r.Context())
	lg.Warn().Err(csrf.FailureReason(r)).Msg("csrf check failed")
	errs.ReturnError(w, r, errs.Errorf(errs.EFORBIDDEN, "Invalid CSRF token."))
}

// recoveryLogger reports recovered panics through the request-independent logger.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	lg := logger.L()
	lg.Error().Interface("panic", v).Msg("recovered from panic")
}
