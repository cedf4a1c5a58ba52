package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/florrin/calagenda/internal/models"
	"github.com/florrin/calagenda/internal/service"
)

const testPubkey = "97c70a44366a6535c145b333f973ea86dfdc2d7a99da618c40c64705ad98e322"

func newAuthFixture(t *testing.T) (*service.AuthService, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	svc := service.NewAuthService(nil, nil, service.AuthConfig{
		Secret:         "test_secret",
		Expiry:         time.Hour,
		OperatorPubkey: testPubkey,
		PasswordHash:   string(hash),
	})
	resp, err := svc.Login(models.LoginRequest{Password: "hunter2"})
	require.NoError(t, err)
	return svc, resp.AccessToken
}

func TestJWTAllowsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, token := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/events", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)

	JWT(svc)(c)

	assert.False(t, c.IsAborted())
	pubkey, ok := CurrentPubkey(c)
	require.True(t, ok)
	assert.Equal(t, testPubkey, pubkey)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/events", nil)

	JWT(svc)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, token := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/events", nil)
	c.Request.Header.Set("Authorization", "Token "+token)

	JWT(svc)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsTamperedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, token := newAuthFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/events", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token+"x")

	JWT(svc)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
