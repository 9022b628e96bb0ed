package smoother

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dtMS = 30

func tickRaw(s *Smoother, zone string, raw bool, nowMS uint32) Output {
	f := s.Tick([]Input{{ZoneID: zone, RawOccupied: raw}}, nowMS)
	return f.Zones[0]
}

// TestSmootherHysteresisShortPulse matches spec.md §8: a raw-true pulse
// shorter than enter_delay_ms must never cause Occupied.
func TestSmootherHysteresisShortPulse(t *testing.T) {
	s := New()
	require.NoError(t, s.SetSensitivity("z", 50)) // enter_delay_ms = 250

	ms := uint32(0)
	out := tickRaw(s, "z", true, ms) // -> Entering
	assert.Equal(t, Entering, out.Phase)
	assert.False(t, out.Occupied)

	ms += 3 * dtMS // 90ms < 250ms delay
	out = tickRaw(s, "z", false, ms)
	assert.False(t, out.Occupied)
	assert.NotEqual(t, Occupied, out.Phase)
	assert.Equal(t, 1, s.Snapshot().FalseOccupancyPrevented)
}

// TestSmootherEntersOccupiedPastDelay: a raw-true run longer than
// enter_delay_ms transitions to Occupied.
func TestSmootherEntersOccupiedPastDelay(t *testing.T) {
	s := New()
	require.NoError(t, s.SetSensitivity("z", 50))

	ms := uint32(0)
	var out Output
	for i := 0; i < 20; i++ { // 20*30=600ms >> 250ms delay
		out = tickRaw(s, "z", true, ms)
		ms += dtMS
	}
	assert.Equal(t, Occupied, out.Phase)
	assert.True(t, out.Occupied)
}

// TestSmootherHoldKeepsOccupiedDuringShortGap matches spec.md §8 scenario 2:
// a raw-false gap shorter than hold_time_ms never causes Vacant.
func TestSmootherHoldKeepsOccupiedDuringShortGap(t *testing.T) {
	s := New()
	require.NoError(t, s.SetSensitivity("z", 50)) // hold_time_ms = 2500

	ms := uint32(0)
	for i := 0; i < 20; i++ {
		tickRaw(s, "z", true, ms)
		ms += dtMS
	}

	var out Output
	for i := 0; i < 20; i++ { // 20*30=600ms < 2500ms hold
		out = tickRaw(s, "z", false, ms)
		ms += dtMS
	}
	assert.True(t, out.Occupied, "must remain occupied through a short gap")
	assert.Equal(t, Holding, out.Phase)
}

// TestSmootherIdempotence: the same raw sequence under identical
// configuration yields identical output sequences.
func TestSmootherIdempotence(t *testing.T) {
	raws := []bool{false, false, true, true, true, true, true, true, true, true,
		true, true, true, false, false, true, true, true, false, false, false, false}

	run := func() []Output {
		s := New()
		require.NoError(t, s.SetSensitivity("z", 40))
		var out []Output
		ms := uint32(0)
		for _, r := range raws {
			out = append(out, tickRaw(s, "z", r, ms))
			ms += dtMS
		}
		return out
	}

	a := run()
	b := run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i], b[i], "tick %d diverged", i)
	}
}

func TestSmootherConfidenceWeightedHold(t *testing.T) {
	s := New()
	require.NoError(t, s.SetSensitivity("z", 50)) // hold_time_ms = 2500, *0.5 = 1250

	ms := uint32(0)
	for i := 0; i < 20; i++ {
		tickRaw(s, "z", true, ms)
		ms += dtMS
	}
	out := s.Tick([]Input{{ZoneID: "z", RawOccupied: false, Confidence: 10, HasConfidence: true}}, ms)
	ms += dtMS
	assert.Equal(t, Holding, out.Zones[0].Phase)

	for i := 0; i < 60; i++ { // 60*30=1800ms > 1250ms low-confidence hold
		tickRaw(s, "z", false, ms)
		ms += dtMS
	}
	final := tickRaw(s, "z", false, ms)
	assert.Equal(t, Vacant, final.Phase)
}
