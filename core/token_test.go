package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenSecret = []byte("c2VjcmV0")

func TestTokenRoundTrip(t *testing.T) {
	identity := Identity{UserID: "alice", DisplayName: "Alice", Role: RoleLawyer}

	token, exp, err := NewToken(identity, time.Hour, tokenSecret)
	require.Nil(t, err)
	require.NotEmpty(t, token)
	assert.Greater(t, exp, time.Now())

	verified, err := VerifyToken(token, tokenSecret)
	require.Nil(t, err)
	assert.Equal(t, identity, verified)
}

func TestExpiredToken(t *testing.T) {
	identity := Identity{UserID: "alice", DisplayName: "Alice", Role: RoleLawyer}

	token, _, err := NewToken(identity, -time.Minute, tokenSecret)
	require.Nil(t, err)

	_, err = VerifyToken(token, tokenSecret)
	assert.Equal(t, ErrTokenExpired, err)
}

func TestTokenWrongSecret(t *testing.T) {
	identity := Identity{UserID: "alice", DisplayName: "Alice", Role: RoleLawyer}

	token, _, err := NewToken(identity, time.Hour, tokenSecret)
	require.Nil(t, err)

	_, err = VerifyToken(token, []byte("other-secret"))
	assert.Equal(t, ErrTokenInvalid, err)
}

func TestTokenMissingIdentity(t *testing.T) {
	t.Run("empty subject", func(t *testing.T) {
		token, _, err := NewToken(Identity{Role: RoleLawyer}, time.Hour, tokenSecret)
		require.Nil(t, err)
		_, err = VerifyToken(token, tokenSecret)
		assert.Equal(t, ErrUnrecognizedToken, err)
	})

	t.Run("invalid role", func(t *testing.T) {
		token, _, err := NewToken(Identity{UserID: "alice", Role: "superuser"}, time.Hour, tokenSecret)
		require.Nil(t, err)
		_, err = VerifyToken(token, tokenSecret)
		assert.Equal(t, ErrUnrecognizedToken, err)
	})
}

func TestGarbageToken(t *testing.T) {
	_, err := VerifyToken("not.a.token", tokenSecret)
	assert.Equal(t, ErrTokenInvalid, err)
}
