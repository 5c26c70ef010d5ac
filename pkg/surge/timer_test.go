package surge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLivenessTimer_FiresOnce(t *testing.T) {
	var fired atomic.Int32
	timer := newLivenessTimer(20*time.Millisecond, func() { fired.Add(1) })
	defer timer.stop()

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, fired.Load())
}

func TestLivenessTimer_RestartBeforeFireDelaysIt(t *testing.T) {
	var fired atomic.Bool
	timer := newLivenessTimer(50*time.Millisecond, func() { fired.Store(true) })
	defer timer.stop()

	time.Sleep(20 * time.Millisecond)
	timer.restart(50*time.Millisecond, func() { fired.Store(true) })

	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load(), "restart before fire should have pushed the deadline out")

	time.Sleep(40 * time.Millisecond)
	assert.True(t, fired.Load())
}

func TestLivenessTimer_StopPreventsFire(t *testing.T) {
	var fired atomic.Bool
	timer := newLivenessTimer(20*time.Millisecond, func() { fired.Store(true) })
	timer.stop()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestLivenessTimer_RestartAfterFireRearms(t *testing.T) {
	var count atomic.Int32
	timer := newLivenessTimer(20*time.Millisecond, func() { count.Add(1) })
	defer timer.stop()

	time.Sleep(40 * time.Millisecond)
	firedSoFar := count.Load()
	assert.GreaterOrEqual(t, firedSoFar, int32(1))

	timer.restart(20*time.Millisecond, func() { count.Add(1) })
	time.Sleep(40 * time.Millisecond)
	assert.GreaterOrEqual(t, count.Load(), firedSoFar+1)
}
