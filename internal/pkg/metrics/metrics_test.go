package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Operation(OpReserve, "ok")
	m.Operation(OpReserve, "ok")
	m.Units(OpRelease, 7)
	m.Shortfall(3)
	m.LockWait(OpReserve, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationCount(OpReserve, "ok")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.UnitCount(OpRelease)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ShortfallCount()))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestMetrics_NilRegisterer(t *testing.T) {
	m := New(nil)
	assert.NotPanics(t, func() { m.Operation(OpRelease, "error") })
}
