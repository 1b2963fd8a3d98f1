package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func signToken(t *testing.T, sub string, key string, exp time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(exp).Unix(),
	})
	s, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestSubject(t *testing.T) {
	v, err := NewVerifier(secret, nil)
	require.NoError(t, err)

	sub, err := v.Subject(signToken(t, "0xwallet", secret, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "0xwallet", sub)
}

func TestSubject_WrongKey(t *testing.T) {
	v, err := NewVerifier(secret, nil)
	require.NoError(t, err)

	_, err = v.Subject(signToken(t, "0xwallet", "other-secret", time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_Expired(t *testing.T) {
	v, err := NewVerifier(secret, nil)
	require.NoError(t, err)

	_, err = v.Subject(signToken(t, "0xwallet", secret, -time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubject_Empty(t *testing.T) {
	v, err := NewVerifier(secret, nil)
	require.NoError(t, err)

	_, err = v.Subject("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsAdmin(t *testing.T) {
	v, err := NewVerifier(secret, []string{"0xadmin", " 0xspaced "})
	require.NoError(t, err)

	assert.True(t, v.IsAdmin("0xadmin"))
	assert.True(t, v.IsAdmin("0xspaced"))
	assert.False(t, v.IsAdmin("0xwallet"))
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, FromRequest(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", FromRequest(r))
}

func TestFromRequest_Cookie(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Cookie", cookieName+"=xyz")
	assert.Equal(t, "xyz", FromRequest(r))
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier("  ", nil)
	assert.Error(t, err)
}
