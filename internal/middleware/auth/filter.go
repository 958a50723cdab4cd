package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/academy/internal/logging"
	"github.com/Skotchmaster/academy/internal/tokens"
)

const bearerPrefix = "Bearer "

type TokenValidator interface {
	Validate(token string) (*tokens.AccessClaims, error)
}

// Filter authenticates bearer tokens. It never rejects a request: a missing or
// bad token leaves the request anonymous and the role gate decides.
type Filter struct {
	validator TokenValidator
	public    []string
}

func NewFilter(v TokenValidator, publicPrefixes []string) *Filter {
	return &Filter{validator: v, public: publicPrefixes}
}

func (f *Filter) isPublic(path string) bool {
	for _, p := range f.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func (f *Filter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if f.isPublic(req.URL.Path) {
				return next(c)
			}

			raw, ok := bearerToken(req.Header.Get(echo.HeaderAuthorization))
			if !ok {
				return next(c)
			}

			claims, err := f.validator.Validate(raw)
			if err != nil {
				logging.FromContext(req.Context()).Warn("access_token_rejected", "error", err)
				return next(c)
			}

			id := Identity{Subject: claims.Subject, Kind: claims.Kind, Roles: claims.Roles}
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}
