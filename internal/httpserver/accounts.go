package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/middleware/auth"
	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/repo"
	"github.com/Skotchmaster/academy/internal/service"
)

type AccountsHTTP struct {
	Svc *service.AuthService
}

// Me answers from the token claims alone.
func (h *AccountsHTTP) Me(c echo.Context) error {
	id, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return auth.ErrNotAuthenticated
	}
	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, meResponse{Username: id.Subject, PrincipalKind: id.Kind, Roles: roles})
}

// callingUser returns the username of the caller, who must be a User.
func callingUser(c echo.Context) (string, error) {
	id, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return "", auth.ErrNotAuthenticated
	}
	if id.Kind != principal.KindUser {
		return "", auth.ErrForbidden
	}
	return id.Subject, nil
}

func (h *AccountsHTTP) CreateWorker(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "create_worker")

	owner, err := callingUser(c)
	if err != nil {
		return err
	}
	var req accountRequest
	if err := bind(c, l, "create_worker_error", &req); err != nil {
		return err
	}

	w, err := h.Svc.CreateWorker(ctx, owner, service.AccountInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrConflict):
			return echo.NewHTTPError(http.StatusConflict, "username or email already taken")
		case errors.Is(err, service.ErrNotAUser):
			return auth.ErrForbidden
		default:
			return internalError(l, "create_worker_error", err)
		}
	}
	return c.JSON(http.StatusCreated, newAccountResponse(*w))
}

func (h *AccountsHTTP) ListWorkers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "list_workers")

	owner, err := callingUser(c)
	if err != nil {
		return err
	}
	workers, err := h.Svc.ListWorkers(ctx, owner)
	if err != nil {
		if errors.Is(err, service.ErrNotAUser) {
			return auth.ErrForbidden
		}
		return internalError(l, "list_workers_error", err)
	}
	return c.JSON(http.StatusOK, newAccountList(workers))
}

func (h *AccountsHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := h.Svc.ListUsers(ctx)
	if err != nil {
		return internalError(logging.FromContext(ctx).With("handler", "list_users"), "list_users_error", err)
	}
	return c.JSON(http.StatusOK, newAccountList(users))
}

func (h *AccountsHTTP) ListRoles(c echo.Context) error {
	ctx := c.Request().Context()
	roles, err := h.Svc.ListRoles(ctx)
	if err != nil {
		return internalError(logging.FromContext(ctx).With("handler", "list_roles"), "list_roles_error", err)
	}
	return c.JSON(http.StatusOK, newRoleList(roles))
}

func (h *AccountsHTTP) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "delete_user")

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := h.Svc.DeleteUser(ctx, uint(id)); err != nil {
		if errors.Is(err, principal.ErrAccountNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return internalError(l, "delete_user_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}
