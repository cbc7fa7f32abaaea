package discovery

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksLikeAmplifier(t *testing.T) {
	require.True(t, looksLikeAmplifier("Living Room Devialet Phantom", ""))
	require.True(t, looksLikeAmplifier("Kitchen Expert 220", ""))
	require.True(t, looksLikeAmplifier("Unbranded Box", "/ipcontrol/v1"))
	require.False(t, looksLikeAmplifier("Random Printer", "/print"))
	require.False(t, looksLikeAmplifier("Random Printer", ""))
}

func TestFirstIPv4_PrefersV4OverV6(t *testing.T) {
	ips := []net.IP{net.ParseIP("::1"), net.ParseIP("192.168.1.10")}
	require.Equal(t, "192.168.1.10", firstIPv4(ips))
}

func TestFirstIPv4_EmptyWhenNoneAvailable(t *testing.T) {
	ips := []net.IP{net.ParseIP("::1")}
	require.Equal(t, "", firstIPv4(ips))
}
