package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/academy/internal/metrics"
	"github.com/Skotchmaster/academy/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/academy/internal/middleware/logging"
	"github.com/Skotchmaster/academy/internal/principal"
)

type Deps struct {
	Auth     *AuthHTTP
	Accounts *AccountsHTTP
	Health   *HealthHTTP
	Filter   *auth.Filter
	Logger   *slog.Logger
}

// New builds an echo instance with the middleware chain and every route.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(d.Logger))
	e.Use(metrics.Middleware())
	e.Use(d.Filter.Middleware())

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", d.Health.Live)
	e.GET("/health/ready", d.Health.Ready)
	e.GET("/metrics", metrics.Handler())

	a := e.Group("/auth")
	a.POST("/login", d.Auth.Login)
	a.POST("/refresh", d.Auth.Refresh)
	a.POST("/logout", d.Auth.Logout)
	a.POST("/register", d.Auth.Register)
	a.POST("/verify", d.Auth.Verify)
	a.POST("/password/forgot", d.Auth.ForgotPassword)
	a.POST("/password/reset", d.Auth.ResetPassword)

	api := e.Group("/api")
	api.GET("/me", d.Accounts.Me, auth.RequireRoles(principal.RoleUser, principal.RoleWorker, principal.RoleAdmin))

	workers := api.Group("/workers", auth.RequireRoles(principal.RoleUser, principal.RoleAdmin))
	workers.POST("", d.Accounts.CreateWorker)
	workers.GET("", d.Accounts.ListWorkers)

	admin := api.Group("/admin", auth.RequireRoles(principal.RoleAdmin))
	admin.GET("/users", d.Accounts.ListUsers)
	admin.DELETE("/users/:id", d.Accounts.DeleteUser)
	admin.GET("/roles", d.Accounts.ListRoles)
}
