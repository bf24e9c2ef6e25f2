package credentials_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/credentials"
)

func TestCipher_SealOpen(t *testing.T) {
	c, err := credentials.NewCipher("process-secret")
	require.NoError(t, err)

	cred := credentials.Credential{Username: "alice", Password: "hunter2"}
	sealed, err := c.Seal("owner-1", cred)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "hunter2")

	got, err := c.Open("owner-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, cred, got)
}

func TestCipher_FreshNonce(t *testing.T) {
	c, err := credentials.NewCipher("process-secret")
	require.NoError(t, err)

	cred := credentials.Credential{Username: "alice", Password: "hunter2"}
	a, err := c.Seal("owner-1", cred)
	require.NoError(t, err)
	b, err := c.Seal("owner-1", cred)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_Rejects(t *testing.T) {
	c, err := credentials.NewCipher("process-secret")
	require.NoError(t, err)
	sealed, err := c.Seal("owner-1", credentials.Credential{Username: "u", Password: "p"})
	require.NoError(t, err)

	t.Run("other owner", func(t *testing.T) {
		_, err := c.Open("owner-2", sealed)
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := credentials.NewCipher("different")
		require.NoError(t, err)
		_, err = other.Open("owner-1", sealed)
		assert.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		b := []byte(sealed)
		b[len(b)-2] ^= 0x01
		_, err := c.Open("owner-1", string(b))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, in := range []string{"", "plain", "v2:AAAA", "v1:!!", "v1:AAAA"} {
			_, err := c.Open("owner-1", in)
			assert.ErrorIs(t, err, credentials.ErrMalformed, in)
		}
	})
}

func TestNewCipher_RequiresSecret(t *testing.T) {
	_, err := credentials.NewCipher("")
	assert.ErrorIs(t, err, credentials.ErrNoSecret)
}
