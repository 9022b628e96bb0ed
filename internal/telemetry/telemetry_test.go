package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorSummariesSortedByZone(t *testing.T) {
	agg := NewAggregator()
	agg.RecordOccupancyDuration("zone-b", 1000)
	agg.RecordOccupancyDuration("zone-a", 500)
	agg.RecordOccupancyDuration("zone-a", 1500)

	summaries := agg.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "zone-a", summaries[0].ZoneID)
	assert.Equal(t, "zone-b", summaries[1].ZoneID)
	assert.Equal(t, 2, summaries[0].OccupancyDurationMS.Count)
	assert.Equal(t, 1, summaries[1].OccupancyDurationMS.Count)
}

func TestAggregatorPercentilesMonotonic(t *testing.T) {
	agg := NewAggregator()
	for i := 1; i <= 100; i++ {
		agg.RecordConfidence("room", float64(i))
	}

	summaries := agg.Summaries()
	require.Len(t, summaries, 1)
	conf := summaries[0].Confidence
	assert.Equal(t, 100, conf.Count)
	assert.True(t, conf.P50 <= conf.P85)
	assert.True(t, conf.P85 <= conf.P98)
}

// TestAggregatorBucketRingTrim asserts the oldest samples are dropped once a
// bucket exceeds MaxSamplesPerBucket, matching the ring-trim behavior in
// bucket.push.
func TestAggregatorBucketRingTrim(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < MaxSamplesPerBucket+10; i++ {
		agg.RecordOccupancyDuration("room", float64(i))
	}

	b := agg.bucketFor("room")
	assert.Len(t, b.occupancyDurationsMS, MaxSamplesPerBucket)
	// The oldest 10 samples (values 0..9) should have been trimmed away.
	assert.Equal(t, float64(10), b.occupancyDurationsMS[0])
}

func TestAggregatorEmptyZoneOmitted(t *testing.T) {
	agg := NewAggregator()
	assert.Empty(t, agg.Summaries())
}
