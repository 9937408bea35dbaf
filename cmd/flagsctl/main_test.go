package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"intervalAllowed":60,"flags":[{"enabled":true,"details":{"name":"beta-ui","id":"1"}},{"enabled":false,"details":{"name":"checkout","id":"2"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FLAGSGG_PROJECT_ID", "p")
	t.Setenv("FLAGSGG_AGENT_ID", "a")
	t.Setenv("FLAGSGG_ENVIRONMENT_ID", "e")

	jsonOutput, redisURL, baseURL, verbose, envFiles = false, "", "", false, nil

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	srv := newFlagsServer(t)

	out, err := run(t, "resolve", "beta-ui", "missing", "--base-url", srv.URL)
	require.NoError(t, err)

	assert.Contains(t, out, "beta-ui")
	assert.Contains(t, out, "RemoteFresh")
	assert.Contains(t, out, "Default")
}

func TestResolveCommandOverride(t *testing.T) {
	srv := newFlagsServer(t)
	t.Setenv("FLAGS_CHECKOUT", "yes")

	out, err := run(t, "resolve", "checkout", "--json", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"provenance": "Override"`)
	assert.Contains(t, out, `"enabled": true`)
}

func TestListCommandWithRedis(t *testing.T) {
	srv := newFlagsServer(t)
	mr := miniredis.RunT(t)

	out, err := run(t, "list", "--base-url", srv.URL, "--redis-url", "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "beta-ui")
	assert.Contains(t, out, "checkout")
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		time.Second, 10*time.Millisecond, "redis connection is released")

	// Second run starts from the persisted cache.
	srv.Close()
	out, err = run(t, "list", "--base-url", srv.URL, "--redis-url", "redis://"+mr.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "FreshCache")
}

func TestStatusCommand(t *testing.T) {
	srv := newFlagsServer(t)

	out, err := run(t, "status", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "refresh: ok")
	assert.Contains(t, out, "breaker=Closed")
}

func TestResolveCommandRequiresArgs(t *testing.T) {
	_, err := run(t, "resolve")
	assert.Error(t, err)
}
