// Package httpapi is the REST surface of the CRM: a fiber application exposing
// authentication, referrals, deals, reports and dashboard stats under /api.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"

	"dealflow/auth"
	"dealflow/dashboard"
	"dealflow/deal"
	"dealflow/referral"
)

type TokenVerifier interface {
	VerifyToken(token string) (auth.Claims, error)
}

type AuthService interface {
	TokenVerifier
	Register(ctx context.Context, req auth.RegisterRequest) (auth.LoginResult, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
}

type ReferralService interface {
	Create(ctx context.Context, ownerID string, params referral.CreateParams) (referral.Referral, error)
	List(ctx context.Context, viewerID string) ([]referral.Referral, error)
}

type DealService interface {
	Create(ctx context.Context, ownerID string, params deal.CreateParams) (deal.Deal, error)
	List(ctx context.Context, viewerID string) ([]deal.Deal, error)
}

type ReportService interface {
	Referrals(ctx context.Context, viewerID, sortBy string) ([]referral.Referral, error)
	Deals(ctx context.Context, viewerID, sortBy string) ([]deal.Deal, error)
}

type StatsService interface {
	Stats(ctx context.Context, viewerID string) (dashboard.Stats, error)
}

// HealthChecker is satisfied by *pgxpool.Pool.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Recorder receives per-request metrics.
type Recorder interface {
	RequestStarted()
	RequestFinished(method, route string, status int, d time.Duration)
}

type Options struct {
	AllowOrigins      []string
	AuthRateLimitMax  int
	AuthRateLimitSpan time.Duration
}

type Deps struct {
	Auth      AuthService
	Referrals ReferralService
	Deals     DealService
	Reports   ReportService
	Stats     StatsService
	Health    HealthChecker

	Logger         logrus.FieldLogger
	Metrics        Recorder
	MetricsHandler http.Handler
}

type Server struct {
	auth      AuthService
	referrals ReferralService
	deals     DealService
	reports   ReportService
	stats     StatsService
	health    HealthChecker

	logger  logrus.FieldLogger
	metrics Recorder
	app     *fiber.App
}

func New(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		auth:      deps.Auth,
		referrals: deps.Referrals,
		deals:     deps.Deals,
		reports:   deps.Reports,
		stats:     deps.Stats,
		health:    deps.Health,
		logger:    logger,
		metrics:   deps.Metrics,
	}

	render := errorHandler(logger)
	s.app = fiber.New(fiber.Config{
		AppName:         "dealflow",
		ErrorHandler:    render,
		StructValidator: newStructValidator(),
	})

	s.app.Use(accessLog(logger, render))
	if s.metrics != nil {
		s.app.Use(instrument(s.metrics))
	}
	s.app.Use(recoverer.New())
	if len(opts.AllowOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{AllowOrigins: opts.AllowOrigins}))
	} else {
		s.app.Use(cors.New())
	}

	s.routes(deps.MetricsHandler, opts)
	return s
}

// App exposes the underlying fiber application for listening and tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes(metricsHandler http.Handler, opts Options) {
	s.app.Get("/health", s.handleHealth)
	if metricsHandler != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	api := s.app.Group("/api")

	var authLimit fiber.Handler = func(c fiber.Ctx) error { return c.Next() }
	if opts.AuthRateLimitMax > 0 {
		span := opts.AuthRateLimitSpan
		if span <= 0 {
			span = time.Minute
		}
		authLimit = limiter.New(limiter.Config{
			Max:        opts.AuthRateLimitMax,
			Expiration: span,
			LimitReached: func(c fiber.Ctx) error {
				return NewAppError(fiber.StatusTooManyRequests, msgTooManyRequests, nil)
			},
		})
	}
	api.Post("/auth/register", authLimit, s.handleRegister)
	api.Post("/auth/login", authLimit, s.handleLogin)

	protected := requireAuth(s.auth)
	api.Get("/auth/me", protected, s.handleMe)

	api.Get("/referrals", protected, s.handleListReferrals)
	api.Post("/referrals", protected, s.handleCreateReferral)

	api.Get("/deals", protected, s.handleListDeals)
	api.Post("/deals", protected, s.handleCreateDeal)

	api.Get("/reports/referrals", protected, s.handleReferralReport)
	api.Get("/reports/deals", protected, s.handleDealReport)

	api.Get("/dashboard/stats", protected, s.handleStats)
}
