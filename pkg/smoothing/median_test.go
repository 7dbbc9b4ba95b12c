package smoothing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRollingMedian(t *testing.T) {
	r := NewRollingMedian(3)

	assert.Equal(t, 10.0, r.Push(10))
	assert.Equal(t, 15.0, r.Push(20))
	assert.Equal(t, 20.0, r.Push(30))

	// Window slides: {20, 30, 100} -> median 30, spike suppressed
	assert.Equal(t, 30.0, r.Push(100))
	assert.Equal(t, 3, r.Len())
}

func TestRollingMedianReset(t *testing.T) {
	r := NewRollingMedian(5)
	r.Push(1)
	r.Push(2)
	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0.0, r.Median())
}

func TestRollingMedianClampsSize(t *testing.T) {
	r := NewRollingMedian(0)
	r.Push(5)
	r.Push(7)

	assert.Equal(t, 7.0, r.Median())
}
