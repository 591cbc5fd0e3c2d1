package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(transitions.WithLabelValues("freeze", string(ResultConflict)))
	ObserveTransition("freeze", ResultConflict, 3*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("freeze", string(ResultConflict))))

	before = testutil.ToFloat64(lockouts)
	IncLockout()
	assert.Equal(t, before+1, testutil.ToFloat64(lockouts))

	before = testutil.ToFloat64(digests.WithLabelValues(string(ResultSkipped)))
	ObserveDigest(ResultSkipped)
	assert.Equal(t, before+1, testutil.ToFloat64(digests.WithLabelValues(string(ResultSkipped))))
}
