package cli

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/metrics"
)

func TestServeMetrics_PortInUseIsLogged(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	buf := new(bytes.Buffer)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serveMetrics(ctx, ln.Addr().String(), zerolog.New(buf), metrics.NewPrometheus().Serve)

	assert.Contains(t, buf.String(), "metrics server failed")
	assert.Contains(t, buf.String(), ln.Addr().String())
	require.NoError(t, ctx.Err(), "the caller's context is left running")
}

func TestServeMetrics_ShutdownIsQuiet(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	serveMetrics(ctx, "127.0.0.1:0", zerolog.New(buf), func(ctx context.Context, _ string, _ zerolog.Logger) error {
		return ctx.Err()
	})
	assert.Empty(t, buf.String())
}
