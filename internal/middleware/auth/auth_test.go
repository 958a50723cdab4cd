package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/academy/internal/principal"
	"github.com/Skotchmaster/academy/internal/tokens"
)

var testSecret = []byte("test-secret-test-secret-test-secret")

func newServer(codec *tokens.Codec) *echo.Echo {
	e := echo.New()
	e.Use(NewFilter(codec, []string{"/health", "/auth/"}).Middleware())

	whoami := func(c echo.Context) error {
		id, ok := IdentityFrom(c.Request().Context())
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, id.Subject+"|"+string(id.Kind))
	}
	e.GET("/open", whoami)
	e.GET("/health/live", whoami)
	e.GET("/admin", whoami, RequireRoles(principal.RoleAdmin))
	e.GET("/staff", whoami, RequireRoles(principal.RoleUser, principal.RoleWorker))
	return e
}

func do(e *echo.Echo, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func issue(t *testing.T, codec *tokens.Codec, kind principal.Kind, roles ...string) string {
	t.Helper()
	tok, _, err := codec.Issue(principal.Principal{Kind: kind, ID: 1, Username: "alice", Roles: roles})
	require.NoError(t, err)
	return tok
}

func TestFilter(t *testing.T) {
	codec := tokens.NewCodec(testSecret, time.Minute)
	e := newServer(codec)
	good := issue(t, codec, principal.KindWorker, principal.RoleWorker)

	tests := []struct {
		name  string
		path  string
		authz string
		want  string
	}{
		{"no header", "/open", "", "anonymous"},
		{"valid bearer", "/open", "Bearer " + good, "alice|WORKER"},
		{"lowercase scheme", "/open", "bearer " + good, "alice|WORKER"},
		{"wrong scheme", "/open", "Basic " + good, "anonymous"},
		{"empty bearer", "/open", "Bearer ", "anonymous"},
		{"garbage token", "/open", "Bearer not.a.jwt", "anonymous"},
		{"public path skipped", "/health/live", "Bearer " + good, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, tt.path, tt.authz)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestFilter_ExpiredAndForeignTokensAreAnonymous(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	expired := issue(t, tokens.NewCodec(testSecret, time.Minute, tokens.WithClock(func() time.Time { return past })), principal.KindUser, principal.RoleUser)
	foreign := issue(t, tokens.NewCodec([]byte("some-other-key-some-other-key!!"), time.Minute), principal.KindUser, principal.RoleAdmin)

	e := newServer(tokens.NewCodec(testSecret, time.Minute))
	for _, tok := range []string{expired, foreign} {
		assert.Equal(t, "anonymous", do(e, "/open", "Bearer "+tok).Body.String())
		assert.Equal(t, http.StatusUnauthorized, do(e, "/admin", "Bearer "+tok).Code)
	}
}

func TestRequireRoles(t *testing.T) {
	codec := tokens.NewCodec(testSecret, time.Minute)
	e := newServer(codec)

	admin := issue(t, codec, principal.KindUser, principal.RoleAdmin)
	user := issue(t, codec, principal.KindUser, principal.RoleUser)
	worker := issue(t, codec, principal.KindWorker, principal.RoleWorker)
	roleless := issue(t, codec, principal.KindUser)

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"admin on admin", "/admin", admin, http.StatusOK},
		{"user on admin", "/admin", user, http.StatusForbidden},
		{"anonymous on admin", "/admin", "", http.StatusUnauthorized},
		{"user on staff", "/staff", user, http.StatusOK},
		{"worker on staff", "/staff", worker, http.StatusOK},
		{"admin on staff", "/staff", admin, http.StatusForbidden},
		{"no roles on staff", "/staff", roleless, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authz := ""
			if tt.token != "" {
				authz = "Bearer " + tt.token
			}
			rec := do(e, tt.path, authz)
			assert.Equal(t, tt.code, rec.Code)
			switch tt.code {
			case http.StatusUnauthorized:
				assert.JSONEq(t, `{"message":"not authenticated"}`, rec.Body.String())
			case http.StatusForbidden:
				assert.JSONEq(t, `{"message":"forbidden"}`, rec.Body.String())
			}
		})
	}
}

func TestIdentity_HasAnyRole(t *testing.T) {
	id := Identity{Roles: []string{principal.RoleUser}}
	assert.True(t, id.HasAnyRole(principal.RoleAdmin, principal.RoleUser))
	assert.False(t, id.HasAnyRole(principal.RoleAdmin))
	assert.False(t, id.HasAnyRole())
}
