package apikey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	key, err := Parse("sk-t0-abc123-longsecret-with-dashes")
	require.NoError(t, err)
	require.Equal(t, "abc123", key.PublicID)
	require.Equal(t, "longsecret-with-dashes", key.Secret)
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{"", "sk-proj-123", "sk-t0-", "sk-t0-abc", "sk-t0--secret", "sk-t0-abc-"} {
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrMalformedKey, raw)
	}
}

func TestMask(t *testing.T) {
	require.Equal(t, "sk-t0-abc123-lo...", Mask("sk-t0-abc123-longsecret"))
	require.Equal(t, "short...", Mask("short"))
}
