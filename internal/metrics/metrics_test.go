package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForWorker(t *testing.T) {
	c := ForWorker(7)
	c.Allowed.Inc()
	c.Blocked.Add(2)
	c.Malformed.Inc()
	c.EmptyPolls.Add(100)
	c.BackoffSleeps.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(FramesTotal.WithLabelValues("7", VerdictAllowed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(FramesTotal.WithLabelValues("7", VerdictBlocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(FramesTotal.WithLabelValues("7", VerdictMalformed)))
	assert.Equal(t, 100.0, testutil.ToFloat64(EmptyPollsTotal.WithLabelValues("7")))
	assert.Equal(t, 1.0, testutil.ToFloat64(BackoffSleepsTotal.WithLabelValues("7")))
}

func TestRegisterPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	unregister, err := RegisterPool(reg, func() (uint64, uint64, uint64) { return 10, 3, 1 })
	require.NoError(t, err)

	expected := `
# HELP fastdrop_pool_free_buffers Number of buffers available in the pool
# TYPE fastdrop_pool_free_buffers gauge
fastdrop_pool_free_buffers 10
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fastdrop_pool_free_buffers"))
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = RegisterPool(reg, func() (uint64, uint64, uint64) { return 0, 0, 0 })
	assert.Error(t, err, "registering twice must fail")

	unregister()
	count, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRegisterRx(t *testing.T) {
	reg := prometheus.NewRegistry()
	var noBuffer uint64 = 2
	unregister, err := RegisterRx(reg, func() (uint64, uint64, uint64, uint64) { return 100, 7, noBuffer, 1 })
	require.NoError(t, err)
	defer unregister()

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	expected := `
# HELP fastdrop_rx_kernel_drops_total Total number of frames dropped by the kernel for lack of ring space
# TYPE fastdrop_rx_kernel_drops_total counter
fastdrop_rx_kernel_drops_total 7
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fastdrop_rx_kernel_drops_total"))

	noBuffer = 5
	expected = `
# HELP fastdrop_rx_no_buffer_total Total number of frames lost for lack of a pool buffer
# TYPE fastdrop_rx_no_buffer_total counter
fastdrop_rx_no_buffer_total 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fastdrop_rx_no_buffer_total"))
}

func TestServerServesMetrics(t *testing.T) {
	RulesActive.Set(3)

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fastdrop_rules_active 3")
}

func TestServerStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "/m").Stop(context.Background()))
}
