package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/repo"
	"github.com/Skotchmaster/academy/internal/service"
)

const (
	msgInvalidCredentials = "invalid username or password"
	msgInvalidRefresh     = "invalid refresh token"
	msgInternal           = "internal server error"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

// bind decodes and validates the body. Both failures are 400.
func bind(c echo.Context, l *slog.Logger, event string, req any) error {
	if err := c.Bind(req); err != nil {
		l.Warn(event, "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(req); err != nil {
		l.Warn(event, "status", 400, "error", err)
		return err
	}
	return nil
}

func internalError(l *slog.Logger, event string, err error) error {
	l.Error(event, "status", 500, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, msgInternal)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := bind(c, l, "login_error", &req); err != nil {
		return err
	}

	res, err := h.Svc.Login(ctx, req.UsernameOrEmail, req.Password)
	if err != nil {
		if errors.Is(err, principal.ErrInvalidCredentials) || errors.Is(err, principal.ErrAccountDisabled) {
			return echo.NewHTTPError(http.StatusUnauthorized, msgInvalidCredentials)
		}
		return internalError(l, "login_error", err)
	}

	roles := res.Roles
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, loginResponse{
		AccessToken:   res.AccessToken,
		RefreshToken:  res.RefreshToken,
		ExpiresIn:     int64(res.ExpiresIn.Seconds()),
		PrincipalKind: res.PrincipalKind,
		Roles:         roles,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		l.Warn("refresh_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, msgInvalidRefresh)
	}

	pair, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRefreshTokenNotFound),
			errors.Is(err, repo.ErrRefreshTokenExpired),
			errors.Is(err, principal.ErrAccountNotFound),
			errors.Is(err, principal.ErrAccountDisabled):
			return echo.NewHTTPError(http.StatusUnauthorized, msgInvalidRefresh)
		default:
			return internalError(l, "refresh_error", err)
		}
	}

	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	})
}

// Logout always answers 204 unless the store fails.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		l.Debug("logout_body_ignored", "error", err)
	}
	if err := h.Svc.Logout(ctx, req.RefreshToken); err != nil {
		return internalError(l, "logout_error", err)
	}
	l.Info("logout_successful")
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req accountRequest
	if err := bind(c, l, "register_error", &req); err != nil {
		return err
	}

	p, err := h.Svc.Register(ctx, service.AccountInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return echo.NewHTTPError(http.StatusConflict, "username or email already taken")
		}
		return internalError(l, "register_error", err)
	}
	return c.JSON(http.StatusCreated, newAccountResponse(*p))
}

func (h *AuthHTTP) Verify(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_verify")

	var req verifyRequest
	if err := bind(c, l, "verify_error", &req); err != nil {
		return err
	}

	if err := h.Svc.Verify(ctx, req.UsernameOrEmail, req.Code); err != nil {
		if errors.Is(err, repo.ErrVerificationFailed) {
			l.Warn("verify_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, "invalid verification code")
		}
		return internalError(l, "verify_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_forgot_password")

	var req forgotPasswordRequest
	if err := bind(c, l, "forgot_password_error", &req); err != nil {
		return err
	}
	if err := h.Svc.ForgotPassword(ctx, req.UsernameOrEmail); err != nil {
		return internalError(l, "forgot_password_error", err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *AuthHTTP) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_reset_password")

	var req resetPasswordRequest
	if err := bind(c, l, "reset_password_error", &req); err != nil {
		return err
	}
	if err := h.Svc.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		if errors.Is(err, repo.ErrResetTokenNotFound) {
			l.Warn("reset_password_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, "invalid or used reset token")
		}
		return internalError(l, "reset_password_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}
