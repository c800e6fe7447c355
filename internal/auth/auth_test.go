package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"altivio-backend/internal/models"
)

var secret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken(secret, Identity{UserID: "u1", Role: models.RoleManager}, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Role: models.RoleManager}, id)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := GenerateToken(secret, Identity{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := GenerateToken([]byte("other"), Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(secret, other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	numeric, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 7}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(secret, numeric)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenDefaultsRole(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u9"}).SignedString(secret)
	require.NoError(t, err)

	id, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, models.RoleDev, id.Role)
}

func TestMiddleware(t *testing.T) {
	m := New(secret)
	tok, err := GenerateToken(secret, Identity{UserID: "u1", Role: models.RoleDev}, time.Hour)
	require.NoError(t, err)

	var seen Identity
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer", "Bearer " + tok, "", http.StatusNoContent},
		{"query token", "", "?token=" + tok, http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = Identity{}
			req := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusNoContent {
				assert.Equal(t, "u1", seen.UserID)
			}
		})
	}
}

func TestRequireManager(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireManager(ok)

	for role, want := range map[models.Role]int{
		models.RoleDev:     http.StatusForbidden,
		models.RoleManager: http.StatusOK,
		models.RoleAdmin:   http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "u", Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
