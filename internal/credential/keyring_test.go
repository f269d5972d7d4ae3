package credential

import (
	"errors"
	"fmt"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestTokenPrefersEnvironment(t *testing.T) {
	get := func(string) (string, error) {
		t.Fatal("keyring must not be consulted")
		return "", nil
	}
	tok, err := tokenFrom(env(map[string]string{TokenEnv: " abc "}), get)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestTokenFallsBackToKeyring(t *testing.T) {
	get := func(key string) (string, error) {
		assert.Equal(t, TokenKey, key)
		return "from-ring", nil
	}
	tok, err := tokenFrom(env(nil), get)
	require.NoError(t, err)
	assert.Equal(t, "from-ring", tok)
}

func TestTokenMissing(t *testing.T) {
	notFound := func(key string) (string, error) {
		return "", fmt.Errorf("getting credential %q: %w", key, keyring.ErrKeyNotFound)
	}
	_, err := tokenFrom(env(nil), notFound)
	assert.ErrorIs(t, err, ErrNoToken)

	blank := func(string) (string, error) { return "  ", nil }
	_, err = tokenFrom(env(nil), blank)
	assert.ErrorIs(t, err, ErrNoToken)

	boom := errors.New("locked")
	_, err = tokenFrom(env(nil), func(string) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}
