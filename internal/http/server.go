package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"entrate/internal/config"
	"entrate/internal/income"
	applog "entrate/internal/log"
	"entrate/internal/middleware/auth"
	"entrate/internal/middleware/ratelimit"
	"entrate/internal/middleware/security"
	"entrate/internal/middleware/trace"
	"entrate/internal/store"
	appweb "entrate/web"
)

// Options configures the server. Controller is the template every session
// controller is created from.
type Options struct {
	Controller            income.Options
	RollbackOnRemoteError bool
	SessionCacheSize      int
	SessionTTL            time.Duration
	RateLimitPerMinute    int
	TrustUserHeader       bool
	UserHeader            string
	UserCookieSecret      string
	SecureCookies         bool
	Logger                *applog.Logger
}

// OptionsFromConfig maps the application config onto server options.
func OptionsFromConfig(cfg *config.Config, publisher income.EventPublisher, logger *applog.Logger) Options {
	mode := income.ModeAtomic
	if cfg.ConsistencyMode == config.ConsistencyReadModifyWrite {
		mode = income.ModeReadModifyWrite
	}
	return Options{
		Controller: income.Options{
			Mode:              mode,
			RemoteTimeout:     cfg.RemoteTimeout,
			SuccessMessageTTL: cfg.SuccessMessageTTL,
			Publisher:         publisher,
			Logger:            logger,
		},
		RollbackOnRemoteError: cfg.RollbackOnRemoteError,
		SessionCacheSize:      cfg.SessionCacheSize,
		SessionTTL:            cfg.SessionTTL,
		RateLimitPerMinute:    cfg.RateLimitPerMinute,
		TrustUserHeader:       cfg.TrustUserHeader,
		UserHeader:            cfg.UserHeader,
		UserCookieSecret:      cfg.UserCookieSecret,
		SecureCookies:         cfg.SecureCookies,
		Logger:                logger,
	}
}

// Server serves the income form and its partials.
type Server struct {
	http.Server
	templates *template.Template
	store     store.DocumentStore
	sessions  *income.Sessions
	opts      Options
	logger    *applog.Logger
	limiter   *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, st store.DocumentStore, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{})
	}
	if opts.SessionCacheSize <= 0 {
		opts.SessionCacheSize = 1000
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.Controller.Logger == nil {
		opts.Controller.Logger = opts.Logger
	}
	if opts.Controller.SuccessMessageTTL <= 0 {
		opts.Controller.SuccessMessageTTL = 2 * time.Second
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store:  st,
		opts:   opts,
		logger: logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
	}
	s.sessions = income.NewSessions(opts.SessionCacheSize, opts.SessionTTL, func() *income.Controller {
		return income.NewController(st, opts.Controller)
	})

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /incomes", s.handleCreateIncome)
	mux.HandleFunc("POST /incomes/validate", s.handleValidateField)
	mux.HandleFunc("GET /ui/income-list", s.handleIncomeList)
	mux.HandleFunc("GET /ui/income-total", s.handleIncomeTotal)
	mux.HandleFunc("GET /ui/success-message", s.handleSuccessMessage)
	mux.HandleFunc("GET /api/incomes/record", s.handleRecord)

	detector := security.NewDetector(opts.Logger.WithComponent(applog.ComponentSecurity))
	tracer := trace.NewMiddleware(logger, detector.ExtractClientIP)

	var h http.Handler = mux
	h = auth.Middleware(auth.Config{
		TrustHeader:  opts.TrustUserHeader,
		UserHeader:   opts.UserHeader,
		TrustedPeer:  detector.IsTrustedPeer,
		CookieSecret: []byte(opts.UserCookieSecret),
		Secure:       opts.SecureCookies,
	})(h)
	h = applog.RequestIDMiddleware(trace.FromRequest)(h)
	h = applog.Middleware(logger)(h)
	h = s.limiter.Middleware(opts.Logger.WithComponent(applog.ComponentRateLimit), detector.ExtractClientIP)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = tracer.Middleware(h)
	s.Handler = h

	return s
}

// Sessions exposes the per-session controllers so the caller can register
// them for periodic expiry.
func (s *Server) Sessions() *income.Sessions {
	return s.sessions
}

// Shutdown stops background goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// controller returns the view state of the caller. Each browser session
// keeps a separate view per user id.
func (s *Server) controller(r *http.Request) *income.Controller {
	key := auth.SessionID(r.Context()) + "|"
	if uid := auth.UserID(r.Context()); uid != nil {
		key += *uid
	}
	return s.sessions.Get(key)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(store.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ServiceUnavailableError("store unavailable").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
