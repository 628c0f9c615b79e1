package dns

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeResolver(answers map[string][]string) *Resolver {
	r := NewResolver()
	r.Servers = []string{"a", "b"}
	r.RemoteTimeout = 200 * time.Millisecond
	r.lookup = func(ctx context.Context, host, server string) ([]string, error) {
		ips, ok := answers[server]
		if !ok {
			return nil, errors.New("nxdomain")
		}
		return ips, nil
	}
	return r
}

func TestLookup_IPLiteral(t *testing.T) {
	r := fakeResolver(nil)
	ip, err := r.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)
}

func TestLookup_PrefersSystemAndIPv4(t *testing.T) {
	r := fakeResolver(map[string][]string{
		"":  {"2001:db8::1", "192.0.2.7"},
		"a": {"198.51.100.1"},
	})
	ip, err := r.Lookup(context.Background(), "relay.example")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", ip)
}

func TestLookup_FallsBackToPublicServers(t *testing.T) {
	r := fakeResolver(map[string][]string{"b": {"2001:db8::2"}})
	ip, err := r.Lookup(context.Background(), "relay.example")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::2", ip)
}

func TestLookup_AllFail(t *testing.T) {
	r := fakeResolver(map[string][]string{})
	_, err := r.Lookup(context.Background(), "relay.example")
	assert.ErrorContains(t, err, "all 2 public DNS servers failed")
}
