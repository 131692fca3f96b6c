package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	require.Equal(t, "ACL_SUCCESS", Success.String())
	require.Equal(t, "ACL_ERROR_RT_CONTEXT_NULL", ErrorRtContextNull.String())
	require.Equal(t, "ACL_ERROR(12345)", Status(12345).String())
	require.True(t, Success.Ok())
	require.False(t, ErrorRtContextNull.Ok())
}

func TestMemcpyKind(t *testing.T) {
	require.Equal(t, "HostToDevice", HostToDevice.String())
	require.Equal(t, "MemcpyKind(7)", MemcpyKind(7).String())
	kind, err := MemcpyKindString("devicetohost")
	require.NoError(t, err)
	require.Equal(t, DeviceToHost, kind)
	_, err = MemcpyKindString("sideways")
	require.Error(t, err)
	require.Len(t, MemcpyKindValues(), 4)
}
