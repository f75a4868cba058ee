package ecu

import "time"

const (
	// Number of per-minute slots in the rotating buffer
	MinuteSlots = 10

	// Per-second totals folded into one minute slot
	SecondsPerMinute = 60

	// Samples slower than this (m/s) are not counted
	MinMovingSpeed = 1.0

	// Distance each seed slot stands for, in metres
	SeedDistance = 1000.0

	fastFlushInterval = time.Second
)

// Sample is an energy (J) and distance (m) pair.
type Sample struct {
	Energy   float64
	Distance float64
}

func (s Sample) add(o Sample) Sample {
	return Sample{Energy: s.Energy + o.Energy, Distance: s.Distance + o.Distance}
}

// Consumption returns J/m, or 0 when no distance was covered.
func (s Sample) Consumption() float64 {
	if s.Distance <= 0 {
		return 0
	}
	return s.Energy / s.Distance
}

func sumSamples(samples []Sample) Sample {
	var total Sample
	for _, s := range samples {
		total = total.add(s)
	}
	return total
}

// Aggregator folds high-rate consumption samples into per-second totals,
// then into a fixed ring of per-minute totals that feeds the moving
// average used for range estimation.
//
// It is not safe for concurrent use; Store only touches it under its lock.
type Aggregator struct {
	fast      []Sample
	fastReset time.Time
	seconds   []Sample

	minutes [MinuteSlots]Sample
	head    int // next slot to overwrite

	average float64
	dirty   bool
}

// NewAggregator seeds every minute slot with the default consumption in J/m.
func NewAggregator(defaultConsumption float64) *Aggregator {
	a := &Aggregator{dirty: true}
	seed := Sample{Energy: defaultConsumption * SeedDistance, Distance: SeedDistance}
	for i := range a.minutes {
		a.minutes[i] = seed
	}
	return a
}

// Append records one integration step. Stationary samples are dropped.
func (a *Aggregator) Append(now time.Time, speed float64, s Sample) {
	if speed < MinMovingSpeed {
		return
	}

	// Buckets are measured from the previous flush, not from their first
	// sample, so they stay one second wide at any frame rate.
	if a.fastReset.IsZero() {
		a.fastReset = now
	}
	a.fast = append(a.fast, s)

	if now.Sub(a.fastReset) >= fastFlushInterval {
		a.appendSecond(sumSamples(a.fast))
		a.fast = a.fast[:0]
		a.fastReset = now
	}
}

func (a *Aggregator) appendSecond(s Sample) {
	a.seconds = append(a.seconds, s)
	if len(a.seconds) <= SecondsPerMinute {
		return
	}

	a.appendMinute(sumSamples(a.seconds[:SecondsPerMinute]))
	carry := append([]Sample(nil), a.seconds[SecondsPerMinute:]...)
	a.seconds = carry
}

func (a *Aggregator) appendMinute(s Sample) {
	a.minutes[a.head] = s
	a.head = (a.head + 1) % MinuteSlots
	a.dirty = true
}

// AverageConsumption returns the ring's total energy over total distance
// in J/m, or 0 when the ring holds no distance. The value is cached until
// the ring changes.
func (a *Aggregator) AverageConsumption() float64 {
	if !a.dirty {
		return a.average
	}
	a.average = sumSamples(a.minutes[:]).Consumption()
	a.dirty = false
	return a.average
}

// LatestConsumption returns J/m of the most recently written minute slot.
func (a *Aggregator) LatestConsumption() float64 {
	latest := (a.head + MinuteSlots - 1) % MinuteSlots
	return a.minutes[latest].Consumption()
}

// Minutes returns the ring contents and the next write position.
func (a *Aggregator) Minutes() ([MinuteSlots]Sample, int) {
	return a.minutes, a.head
}

// Restore replaces the ring and drops any partial second/minute data.
func (a *Aggregator) Restore(minutes [MinuteSlots]Sample, head int) {
	a.minutes = minutes
	a.head = ((head % MinuteSlots) + MinuteSlots) % MinuteSlots
	a.fast = a.fast[:0]
	a.fastReset = time.Time{}
	a.seconds = a.seconds[:0]
	a.dirty = true
}
