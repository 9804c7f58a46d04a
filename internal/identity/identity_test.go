package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-123",
			Audience:  jwt.ClaimStrings{"bazaar"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret, "bazaar")

	claims, err := v.Verify(signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "sub-123", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestVerifier_Rejections(t *testing.T) {
	v := NewVerifier(testSecret, "bazaar")

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"other-service"}

	noSubject := validClaims()
	noSubject.Subject = ""

	cases := map[string]string{
		"wrong secret": signToken(t, "other-secret", validClaims()),
		"expired":      signToken(t, testSecret, expired),
		"wrong aud":    signToken(t, testSecret, wrongAud),
		"no subject":   signToken(t, testSecret, noSubject),
		"garbage":      "not.a.jwt",
	}
	for name, token := range cases {
		_, err := v.Verify(token)
		assert.Error(t, err, name)
	}
}

func TestVerifier_Unconfigured(t *testing.T) {
	v := NewVerifier("", "bazaar")
	assert.False(t, v.Enabled())

	_, err := v.Verify(signToken(t, testSecret, validClaims()))
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestRequireIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewVerifier(testSecret, "bazaar")

	r := gin.New()
	r.GET("/me", RequireIdentity(v), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject})
	})

	do := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("Bearer "+signToken(t, testSecret, validClaims())).Code)
	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer bogus").Code)
	assert.Equal(t, http.StatusUnauthorized, do(signToken(t, testSecret, validClaims())).Code, "missing Bearer prefix")
}

func TestRequireIdentity_Unconfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/me", RequireIdentity(NewVerifier("", "")), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
