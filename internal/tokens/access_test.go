package tokens

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/academy/internal/principal"
)

var testSecret = []byte("test-jwt-secret")

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func admin() principal.Principal {
	return principal.Principal{
		Kind:     principal.KindUser,
		ID:       1,
		Username: "admin",
		Roles:    []string{principal.RoleAdmin},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now()
	codec := NewCodec(testSecret, 15*time.Minute, WithClock(fixedClock(now)))

	for _, p := range []principal.Principal{
		admin(),
		{Kind: principal.KindWorker, ID: 4, Username: "w1", Roles: []string{principal.RoleWorker, "ROLE_EDITOR"}},
		{Kind: principal.KindUser, ID: 5, Username: "norole"},
	} {
		token, exp, err := codec.Issue(p)
		require.NoError(t, err)
		assert.WithinDuration(t, now.Add(15*time.Minute), exp, time.Second)

		claims, err := codec.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, p.Username, claims.Subject)
		assert.Equal(t, p.Kind, claims.Kind)
		assert.ElementsMatch(t, p.Roles, claims.Roles)
		require.NotNil(t, claims.IssuedAt)
		assert.WithinDuration(t, now, claims.IssuedAt.Time, time.Second)
	}
}

func TestCodec_ClaimSchema(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret, time.Minute)
	token, _, err := codec.Issue(admin())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"sub", "kind", "roles", "iat", "exp"}, keys)
	assert.Equal(t, "USER", raw["kind"])
	assert.Equal(t, []any{"ROLE_ADMIN"}, raw["roles"])

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Contains(t, string(header), `"alg":"HS256"`)
}

func TestCodec_Expired(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Add(-time.Hour)
	issuer := NewCodec(testSecret, 15*time.Minute, WithClock(fixedClock(issuedAt)))
	token, _, err := issuer.Issue(admin())
	require.NoError(t, err)

	validator := NewCodec(testSecret, 15*time.Minute)
	_, err = validator.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// still valid one second before expiry
	early := NewCodec(testSecret, 15*time.Minute, WithClock(fixedClock(issuedAt.Add(15*time.Minute-time.Second))))
	_, err = early.Validate(token)
	assert.NoError(t, err)
}

func TestCodec_RejectsForeignOrUnsignedTokens(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret, time.Minute)
	now := time.Now()
	claims := AccessClaims{
		Kind:  principal.KindUser,
		Roles: []string{principal.RoleAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-key"))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"different key", otherKey, ErrTokenInvalidSignature},
		{"alg none", unsigned, ErrTokenInvalidSignature},
		{"HS512", otherAlg, ErrTokenInvalidSignature},
		{"garbage", "not-a-jwt", ErrTokenMalformed},
		{"empty", "", ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := codec.Validate(tt.token)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCodec_RejectsTokensWithoutIdentity(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret, time.Minute)
	exp := time.Now().Add(time.Minute).Unix()

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"no kind", jwt.MapClaims{"sub": "admin", "exp": exp}},
		{"unknown kind", jwt.MapClaims{"sub": "admin", "kind": "ROBOT", "exp": exp}},
		{"no subject", jwt.MapClaims{"kind": "USER", "exp": exp}},
		{"no expiry", jwt.MapClaims{"sub": "admin", "kind": "USER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString(testSecret)
			require.NoError(t, err)

			_, err = codec.Validate(token)
			assert.ErrorIs(t, err, ErrTokenMalformed)
		})
	}
}

func TestCodec_IssueRequiresIdentity(t *testing.T) {
	t.Parallel()

	codec := NewCodec(testSecret, time.Minute)
	_, _, err := codec.Issue(principal.Principal{Kind: principal.KindUser})
	assert.Error(t, err)
	_, _, err = codec.Issue(principal.Principal{Username: "x"})
	assert.Error(t, err)
}
