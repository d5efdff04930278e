package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveExecution(t *testing.T) {
	before := testutil.ToFloat64(executionsTotal.WithLabelValues("SUCCESS"))
	ObserveExecution("SUCCESS", 150*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(executionsTotal.WithLabelValues("SUCCESS")))
}

func TestIncOrder(t *testing.T) {
	before := testutil.ToFloat64(ordersTotal.WithLabelValues("OPEN_LONG", "false"))
	IncOrder("OPEN_LONG", false)
	assert.Equal(t, before+1, testutil.ToFloat64(ordersTotal.WithLabelValues("OPEN_LONG", "false")))
}
