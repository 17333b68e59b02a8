package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mentor-schedule-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func echoCaller(w http.ResponseWriter, r *http.Request) {
	c, ok := CallerFrom(r.Context())
	if !ok {
		_, _ = io.WriteString(w, "anonymous")
		return
	}
	_, _ = io.WriteString(w, c.UserID+"/"+string(c.Role))
}

func do(t *testing.T, h http.Handler, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequired(t *testing.T) {
	h := New(discard, secret)(http.HandlerFunc(echoCaller))

	token, err := Issue(secret, "user-1", models.RoleMentor, time.Hour)
	require.NoError(t, err)

	rec := do(t, h, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1/mentor", rec.Body.String())

	expired, err := Issue(secret, "user-1", models.RoleMentor, -time.Minute)
	require.NoError(t, err)
	forged, err := Issue("other-secret", "user-1", models.RoleMentor, time.Hour)
	require.NoError(t, err)
	noRole, err := Issue(secret, "user-1", "admin", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: "mentor"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"missing":      "",
		"expired":      expired,
		"wrong secret": forged,
		"unknown role": noRole,
		"alg none":     none,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, tok)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestOptional(t *testing.T) {
	h := Optional(discard, secret)(http.HandlerFunc(echoCaller))

	rec := do(t, h, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	token, err := Issue(secret, "user-2", models.RoleCustomer, time.Hour)
	require.NoError(t, err)
	rec = do(t, h, token)
	assert.Equal(t, "user-2/customer", rec.Body.String())

	rec = do(t, h, "broken")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
