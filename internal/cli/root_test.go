package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Defaults(t *testing.T) {
	cmd := newRootCmd()
	f := cmd.Flags()

	interval, err := f.GetDuration("interval")
	require.NoError(t, err)
	assert.Equal(t, "2s", interval.String())

	count, err := f.GetInt("count")
	require.NoError(t, err)
	assert.Zero(t, count)

	topic, err := f.GetString("topic")
	require.NoError(t, err)
	assert.Equal(t, "iot/monitoramento/sensor", topic)
}

func TestRootCmd_HTTPOnlyRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dados_http" && r.Method == http.MethodPost {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--server-url", srv.URL,
		"--skip-mqtt",
		"--interval", "0s",
		"--count", "3",
		"--log-level", "error",
	})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestRootCmd_RejectsBadFlags(t *testing.T) {
	cases := map[string][]string{
		"qos out of range": {"--qos", "3", "--skip-mqtt"},
		"negative count":   {"--count", "-1", "--skip-mqtt"},
		"nothing to send":  {"--skip-http", "--skip-mqtt"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(args, "--log-level", "error"))
			cmd.SetOut(&discard{})
			cmd.SetErr(&discard{})
			assert.Error(t, cmd.Execute())
		})
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
