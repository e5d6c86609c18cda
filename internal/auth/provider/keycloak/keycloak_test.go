package keycloak

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebase(t *testing.T) {
	got, err := rebase(
		"http://keycloak:8080/realms/artistry/protocol/openid-connect/auth",
		"https://login.example.com/",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com/realms/artistry/protocol/openid-connect/auth", got)

	_, err = rebase("http://keycloak:8080/auth", "not a url")
	assert.Error(t, err)
}
