package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoString(t *testing.T) {
	require.Equal(t, "v1.0.0", Info{Version: "v1.0.0"}.String())
	require.Equal(t, "v1.0.0 (0123456, dirty)", Info{Version: "v1.0.0", Revision: "0123456789abcdef", Modified: true}.String())
}

func TestVersion_LdflagsWins(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })
	version = "v9.9.9"
	require.Equal(t, "v9.9.9", Version())
	require.Equal(t, "v9.9.9", Build().Version)
}
