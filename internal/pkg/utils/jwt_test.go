package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	s, err := GenerateToken("uploader", "secret", "go-chunkupload", time.Hour)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(s, claims, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "uploader", claims.Subject)
	assert.Equal(t, "go-chunkupload", claims.Issuer)

	_, err = GenerateToken("uploader", "", "", time.Hour)
	assert.Error(t, err)
}
