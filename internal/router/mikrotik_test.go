package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newScriptedClient(t *testing.T, respond func(cmd string) (string, error)) (*MikroTikClient, *[]string) {
	t.Helper()

	client, err := NewMikroTikClient(MikroTikConfig{
		Address:  "192.168.88.1",
		Username: "admin",
		Password: "secret",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	cmds := &[]string{}
	client.run = func(ctx context.Context, cmd string) (string, error) {
		*cmds = append(*cmds, cmd)
		return respond(cmd)
	}
	return client, cmds
}

func TestNormalizeMAC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF"},
		{"aabb.ccdd.eeff", "AA:BB:CC:DD:EE:FF"},
		{"aabbccddeeff", "AA:BB:CC:DD:EE:FF"},
		{"AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF"},
		// Not 12 hex chars: returned cleaned but unformatted.
		{"aabbcc", "AABBCC"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeMAC(tc.in), "input %q", tc.in)
	}
}

func TestBindingMatch(t *testing.T) {
	require.Equal(t, "address=10.5.50.23", bindingMatch("10.5.50.23"))
	require.Equal(t, "mac-address=AA:BB:CC:DD:EE:FF", bindingMatch("aa:bb:cc:dd:ee:ff"))
}

func TestNewMikroTikClientRequiresAuth(t *testing.T) {
	_, err := NewMikroTikClient(MikroTikConfig{
		Address:  "192.168.88.1",
		Username: "admin",
	}, zaptest.NewLogger(t))
	require.Error(t, err)

	client, err := NewMikroTikClient(MikroTikConfig{
		Address:  "192.168.88.1",
		Username: "admin",
		Password: "secret",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, 22, client.config.Port)
}

func TestAllowAndDenyCarryTheSessionTag(t *testing.T) {
	client, cmds := newScriptedClient(t, func(cmd string) (string, error) {
		return "", nil
	})

	require.NoError(t, client.Allow(context.Background(), "aa:bb:cc:dd:ee:ff", "session:a"))
	require.NoError(t, client.Deny(context.Background(), "aa:bb:cc:dd:ee:ff", "session:a"))

	require.Equal(t, []string{
		`/ip hotspot ip-binding add mac-address=AA:BB:CC:DD:EE:FF type=bypassed comment="session:a"`,
		`/ip hotspot ip-binding remove [find comment="session:a"]`,
	}, *cmds)
}

func TestAllowRetagsBindingForRenewedSession(t *testing.T) {
	// Session B renews the same device while session A's binding is still
	// on the router. The duplicate add must move the binding onto B's tag,
	// so A's stale expiry removes nothing and B's own deny still matches.
	client, cmds := newScriptedClient(t, func(cmd string) (string, error) {
		if strings.HasPrefix(cmd, "/ip hotspot ip-binding add") &&
			strings.Contains(cmd, `comment="session:b"`) {
			return "failure: already have such entry", nil
		}
		return "", nil
	})

	require.NoError(t, client.Allow(context.Background(), "aa:bb:cc:dd:ee:ff", "session:a"))
	require.NoError(t, client.Allow(context.Background(), "aa:bb:cc:dd:ee:ff", "session:b"))
	require.NoError(t, client.Deny(context.Background(), "aa:bb:cc:dd:ee:ff", "session:a"))

	require.Equal(t, []string{
		`/ip hotspot ip-binding add mac-address=AA:BB:CC:DD:EE:FF type=bypassed comment="session:a"`,
		`/ip hotspot ip-binding add mac-address=AA:BB:CC:DD:EE:FF type=bypassed comment="session:b"`,
		`/ip hotspot ip-binding set [find mac-address=AA:BB:CC:DD:EE:FF] comment="session:b"`,
		`/ip hotspot ip-binding remove [find comment="session:a"]`,
	}, *cmds)
}

func TestAllowSurfacesRetagRejection(t *testing.T) {
	client, _ := newScriptedClient(t, func(cmd string) (string, error) {
		if strings.HasPrefix(cmd, "/ip hotspot ip-binding add") {
			return "failure: already have such entry", nil
		}
		return "syntax error (line 1 column 12)", nil
	})

	err := client.Allow(context.Background(), "aa:bb:cc:dd:ee:ff", "session:b")
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, KindRejected, gwErr.Kind)
}

func TestGatewayError(t *testing.T) {
	inner := errors.New("connection refused")
	err := &GatewayError{Kind: KindUnreachable, Detail: "dial 192.168.88.1:22", Err: inner}

	require.Contains(t, err.Error(), "unreachable")
	require.Contains(t, err.Error(), "connection refused")
	require.ErrorIs(t, err, inner)

	bare := &GatewayError{Kind: KindRejected, Detail: "syntax error"}
	require.Equal(t, "gateway rejected: syntax error", bare.Error())
}
