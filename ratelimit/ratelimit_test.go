package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/ringstack-go/ratelimit"
)

func TestDisabled(t *testing.T) {
	l := ratelimit.New(0)
	require.Nil(t, l)

	start := time.Now()
	for i := 0; i < 1_000_000; i++ {
		l.Wait()
	}
	assert.Less(t, time.Since(start), time.Second, "nil limiter never sleeps")
}

func TestPacing(t *testing.T) {
	// 10k datagrams per second, clock checked every 100.
	l := ratelimit.New(10_000)
	require.NotNil(t, l)

	start := time.Now()
	for i := 0; i < 300; i++ {
		l.Wait()
	}
	// 300 datagrams are due no earlier than 30ms in; allow generous
	// slack below that for coarse sleep granularity.
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestWaitNBatches(t *testing.T) {
	l := ratelimit.New(100_000)

	start := time.Now()
	// 2000 datagrams in batches crossing several check boundaries.
	for i := 0; i < 20; i++ {
		l.WaitN(100)
	}
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
