package telemetry

import "time"

// Window is one aggregated CSV row.
type Window struct {
	RunID          string  `csv:"run_id"`
	Role           string  `csv:"role"`
	Start          string  `csv:"start"`
	DurationSec    float64 `csv:"duration_s"`
	Samples        int     `csv:"samples"`
	LastTick       uint64  `csv:"last_tick"`
	Messages       int     `csv:"messages"`
	Bytes          int     `csv:"bytes"`
	BytesPerSec    float64 `csv:"bytes_per_s"`
	Dropped        int     `csv:"dropped"`
	MeanTickMs     float64 `csv:"mean_tick_ms"`
	MaxTickMs      float64 `csv:"max_tick_ms"`
	MeanCandidates float64 `csv:"mean_candidates"`
	Count          int     `csv:"count"`
	MeanSpeed      float64 `csv:"mean_speed"`
	SpeedStdDev    float64 `csv:"speed_std_dev"`
	Polarization   float64 `csv:"polarization"`
}

// accumulator folds samples until the window is closed.
type accumulator struct {
	start      time.Time
	samples    int
	messages   int
	bytes      int
	dropped    int
	candidates int
	tickTotal  time.Duration
	tickMax    time.Duration
	last       Sample
}

func (a *accumulator) add(s Sample, now time.Time) {
	if a.samples == 0 {
		a.start = now
	}
	a.samples++
	a.messages += s.Messages
	a.bytes += s.Bytes
	a.dropped += s.Dropped
	a.candidates += s.Candidates
	a.tickTotal += s.TickDuration
	a.tickMax = max(a.tickMax, s.TickDuration)
	a.last = s
}

func (a *accumulator) empty() bool { return a.samples == 0 }

func (a *accumulator) due(now time.Time, interval time.Duration) bool {
	return !a.empty() && now.Sub(a.start) >= interval
}

// close returns the aggregated row and resets the accumulator.
func (a *accumulator) close(runID string, role Role, now time.Time) Window {
	elapsed := now.Sub(a.start)
	w := Window{
		RunID:        runID,
		Role:         string(role),
		Start:        a.start.UTC().Format(time.RFC3339Nano),
		DurationSec:  elapsed.Seconds(),
		Samples:      a.samples,
		LastTick:     a.last.Tick,
		Messages:     a.messages,
		Bytes:        a.bytes,
		Dropped:      a.dropped,
		MaxTickMs:    float64(a.tickMax) / float64(time.Millisecond),
		Count:        a.last.Stats.Count,
		MeanSpeed:    a.last.Stats.MeanSpeed,
		SpeedStdDev:  a.last.Stats.SpeedStdDev,
		Polarization: a.last.Stats.Polarization,
	}
	if a.samples > 0 {
		w.MeanTickMs = float64(a.tickTotal) / float64(a.samples) / float64(time.Millisecond)
		w.MeanCandidates = float64(a.candidates) / float64(a.samples)
	}
	if elapsed > 0 {
		w.BytesPerSec = float64(a.bytes) / elapsed.Seconds()
	}
	*a = accumulator{}
	return w
}
