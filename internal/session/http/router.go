package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/internal/session/service"
	"github.com/aussiebroadwan/sessionguard/pkg/httpx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"

	_ "github.com/aussiebroadwan/sessionguard/api/session" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RateLimits are the per-route limiter profiles.
type RateLimits struct {
	Login   httpx.RateLimitConfig
	Refresh httpx.RateLimitConfig
	Write   httpx.RateLimitConfig
	Read    httpx.RateLimitConfig
}

// DefaultRateLimits uses the httpx profiles, which honour the RATELIMIT_*
// environment overrides.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Login:   httpx.StrictLimit,
		Refresh: httpx.ModerateLimit,
		Write:   httpx.ModerateLimit,
		Read:    httpx.LenientLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	Sessions *service.SessionService
	Tokens   *service.TokenService
	Users    *service.UserService
	Audit    *service.AuditLog

	// Ready lists the dependencies /readyz pings, by name.
	Ready map[string]Pinger

	// MetricsToken must be presented in X-Metrics-Token to scrape /metrics.
	MetricsToken string

	Limits RateLimits
}

func NewRouter(buildVersion string, logger *slog.Logger, m *metrics.Metrics) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		metrics:      m,
		Limits:       DefaultRateLimits(),
	}

	// Instrument sits directly on the mux so it sees the matched pattern.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		m.Instrument,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerAudit()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			sessionguard API
//	@version		0.1.0
//	@description	Session security service: HS256 access tokens with kid-based key rotation,
//	@description	single-use refresh tokens with reuse detection, token revocation and a hash-chained audit log.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/sessionguard
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Sessions: r.Sessions}

	// Public endpoints, limited by IP. Login is also keyed by username to
	// slow down password guessing against one account from many IPs.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.Limits.Write),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(r.Limits.Login, "username"),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Refresh),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(r.Limits.Write),
		),
	)

	// Authenticated endpoints, limited per user.
	r.Mux.Handle("POST /v1/auth/logout-all",
		httpx.Chain(http.HandlerFunc(h.HandleLogoutAll),
			httpx.AuthnMiddleware(r.Tokens),
			httpx.RateLimitByUser(r.Limits.Write),
		),
	)
	r.Mux.Handle("POST /v1/auth/change-password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.AuthnMiddleware(r.Tokens),
			httpx.RateLimitByUser(r.Limits.Write),
		),
	)
}

func (r *Router) registerUsers() {
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(&MeHandler{Users: r.Users},
			httpx.AuthnMiddleware(r.Tokens),
			httpx.RateLimitByUser(r.Limits.Read),
		),
	)
}

func (r *Router) registerAudit() {
	r.Mux.Handle("GET /v1/audit/verify",
		httpx.Chain(&AuditVerifyHandler{Audit: r.Audit},
			httpx.AuthnMiddleware(r.Tokens),
			httpx.RequireRole("admin"),
			httpx.RateLimitByUser(r.Limits.Write),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Read),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.Ready),
			httpx.RateLimitByIP(r.Limits.Read),
		),
	)

	r.Mux.Handle("GET /metrics", MetricsGuard(r.MetricsToken, r.metrics.Handler()))
}
