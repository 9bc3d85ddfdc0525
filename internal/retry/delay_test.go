package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource always returns the same float64, useful for pinning jitter in
// tests that want to check the base-delay curve exactly.
type fixedSource struct{ v float64 }

func (f fixedSource) Float64() float64 { return f.v }

func TestCalculateDelay_NegativeRetryCountFails(t *testing.T) {
	c := NewCalculator(Config{InitialDelay: time.Second, MaxDelay: time.Minute}, fixedSource{0.5})
	_, err := c.CalculateDelay(-1)
	require.Error(t, err)
}

func TestCalculateDelay_WithinJitterBounds(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second}

	for k := 0; k < 10; k++ {
		// u at the extremes of [-1, 1): the lowest source value 0.0
		// maps to u=-1, and a value just under 1.0 maps to u close to +1.
		lowSrc := fixedSource{0}
		highSrc := fixedSource{0.999999}

		low := NewCalculator(cfg, lowSrc)
		high := NewCalculator(cfg, highSrc)

		base := baseDelay(k, cfg.InitialDelay, cfg.MaxDelay)

		d, err := low.CalculateDelay(k)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8)-time.Millisecond)

		d2, err := high.CalculateDelay(k)
		require.NoError(t, err)
		assert.Less(t, d2, time.Duration(float64(base)*1.2)+time.Millisecond)

		assert.GreaterOrEqual(t, d, minDelay)
		assert.GreaterOrEqual(t, d2, minDelay)
	}
}

func TestBaseDelay_ExponentialUntilClamped(t *testing.T) {
	initial := 10 * time.Millisecond
	max := 160 * time.Millisecond

	assert.Equal(t, 10*time.Millisecond, baseDelay(0, initial, max))
	assert.Equal(t, 20*time.Millisecond, baseDelay(1, initial, max))
	assert.Equal(t, 40*time.Millisecond, baseDelay(2, initial, max))
	assert.Equal(t, 80*time.Millisecond, baseDelay(3, initial, max))
	assert.Equal(t, 160*time.Millisecond, baseDelay(4, initial, max))
	// 2^5 * 10ms = 320ms > max; clamped.
	assert.Equal(t, max, baseDelay(5, initial, max))
	assert.Equal(t, max, baseDelay(6, initial, max))
}

func TestBaseDelay_ClampsAtOverflowShiftLimit(t *testing.T) {
	initial := time.Millisecond
	max := time.Hour
	assert.Equal(t, max, baseDelay(62, initial, max))
	assert.Equal(t, max, baseDelay(1000, initial, max))
}

func TestBaseDelay_NeverExceedsMax(t *testing.T) {
	initial := time.Second
	max := time.Hour
	for k := 0; k < 70; k++ {
		d := baseDelay(k, initial, max)
		assert.LessOrEqual(t, d, max)
	}
}

func TestCalculateDelay_FloorIsOneMillisecond(t *testing.T) {
	cfg := Config{InitialDelay: time.Nanosecond, MaxDelay: time.Millisecond}
	c := NewCalculator(cfg, fixedSource{0})
	d, err := c.CalculateDelay(0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, minDelay)
}
