package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refound-dev/refound/store"
)

const testSecret = "test-secret"

func collegeIdentity() *CallerIdentity {
	collegeID := "college-1"
	return &CallerIdentity{
		UserID:           "user-1",
		OrganizationType: store.OrganizationCollege,
		CollegeID:        &collegeID,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testSecret, collegeIdentity(), time.Hour)
	require.NoError(t, err)

	identity, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, store.OrganizationCollege, identity.OrganizationType)
	require.NotNil(t, identity.CollegeID)
	assert.Equal(t, "college-1", *identity.CollegeID)
	assert.Equal(t, "college-1", identity.ScopeID())
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, collegeIdentity(), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken(testSecret, collegeIdentity(), -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestParseTokenMissingScope(t *testing.T) {
	identity := &CallerIdentity{
		UserID:           "user-1",
		OrganizationType: store.OrganizationCollege,
	}
	token, err := GenerateToken(testSecret, identity, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	handler := Middleware(testSecret)(func(c echo.Context) error {
		identity := IdentityFromContext(c.Request().Context())
		require.NotNil(t, identity)
		return c.String(http.StatusOK, identity.UserID)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := GenerateToken(testSecret, collegeIdentity(), time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		require.NoError(t, handler(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		err := handler(e.NewContext(req, rec))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()

		err := handler(e.NewContext(req, rec))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}
