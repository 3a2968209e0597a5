package rcon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestIDWraparound(t *testing.T) {
	console := &remoteConsole{reqID: 65534}

	require.Equal(t, int32(65535), console.nextID())
	require.Equal(t, int32(0), console.nextID())
	require.Equal(t, int32(1), console.nextID())
}
