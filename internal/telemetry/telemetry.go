// Package telemetry computes rolling percentile summaries of pipeline
// output for the embedding host's introspection surface: per-zone
// occupancy duration and track confidence, in the style of the teacher's
// speed-percentile rollups (internal/db.go), but kept in memory per
// bucket rather than persisted — persistence is internal/telemetry/store's
// job.
package telemetry

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MaxSamplesPerBucket bounds memory: once a bucket's sample slice reaches
// this length, the oldest sample is dropped to make room for the newest
// (a simple ring, not a reservoir sample).
const MaxSamplesPerBucket = 512

// Percentiles is a P50/P85/P98 summary over a sample set, matching the
// teacher's RadarObjectsRollupRow percentile fields.
type Percentiles struct {
	P50   float64
	P85   float64
	P98   float64
	Count int
}

func computePercentiles(samples []float64) Percentiles {
	if len(samples) == 0 {
		return Percentiles{}
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return Percentiles{
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P85:   stat.Quantile(0.85, stat.Empirical, sorted, nil),
		P98:   stat.Quantile(0.98, stat.Empirical, sorted, nil),
		Count: len(sorted),
	}
}

// Bucket accumulates samples for one zone.
type bucket struct {
	occupancyDurationsMS []float64
	confidences          []float64
}

func (b *bucket) push(slice *[]float64, v float64) {
	s := *slice
	s = append(s, v)
	if len(s) > MaxSamplesPerBucket {
		s = s[len(s)-MaxSamplesPerBucket:]
	}
	*slice = s
}

// Summary is one zone's percentile snapshot.
type Summary struct {
	ZoneID             string
	OccupancyDurationMS Percentiles
	Confidence         Percentiles
}

// Aggregator collects occupancy-duration and confidence samples per zone
// and reports rolling percentile summaries on demand.
type Aggregator struct {
	buckets map[string]*bucket
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[string]*bucket)}
}

func (a *Aggregator) bucketFor(zoneID string) *bucket {
	b, ok := a.buckets[zoneID]
	if !ok {
		b = &bucket{}
		a.buckets[zoneID] = b
	}
	return b
}

// RecordOccupancyDuration records one completed Occupied/Holding span's
// duration in milliseconds for zoneID (sampled when a zone transitions
// back to Vacant).
func (a *Aggregator) RecordOccupancyDuration(zoneID string, durationMS float64) {
	b := a.bucketFor(zoneID)
	b.push(&b.occupancyDurationsMS, durationMS)
}

// RecordConfidence records one member track's confidence score, 0-100,
// observed while zoneID was occupied.
func (a *Aggregator) RecordConfidence(zoneID string, confidence float64) {
	b := a.bucketFor(zoneID)
	b.push(&b.confidences, confidence)
}

// Summaries returns the current percentile snapshot for every zone that
// has recorded at least one sample, sorted by zone id for deterministic
// output.
func (a *Aggregator) Summaries() []Summary {
	ids := make([]string, 0, len(a.buckets))
	for id := range a.buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		b := a.buckets[id]
		out = append(out, Summary{
			ZoneID:              id,
			OccupancyDurationMS: computePercentiles(b.occupancyDurationsMS),
			Confidence:          computePercentiles(b.confidences),
		})
	}
	return out
}
