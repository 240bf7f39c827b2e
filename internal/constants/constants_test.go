package constants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBillingDefaults(t *testing.T) {
	t.Run("normal day warns before it stops", func(t *testing.T) {
		assert.Less(t, DefaultNormalWarn, DefaultNormalStop)
	})

	t.Run("special day tiers are ordered", func(t *testing.T) {
		assert.Less(t, DefaultSpecialWarn, DefaultSpecialEscalate)
		assert.Less(t, DefaultSpecialEscalate, DefaultSpecialStop)
		assert.Greater(t, DefaultSpecialStop, DefaultNormalStop, "special days should allow more spend")
	})
}

func TestSchedulerDefaults(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultIterationInterval)
	assert.Greater(t, DefaultFailureBackoff, DefaultIterationInterval, "failures should back off further")
	assert.Equal(t, 10, DefaultSummaryEvery)
	assert.Equal(t, 3, DefaultDegradedAfter)
}

func TestTimeoutsAreBounded(t *testing.T) {
	assert.Greater(t, DefaultTestTimeout, DefaultCommandTimeout, "test runs get a longer timeout than commands")
	assert.Less(t, LockRetryInterval, time.Second, "should retry quickly")
}
