package telemetry

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Role names the process a sample comes from.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
	RoleReplay   Role = "replay"
)

// Sample is one measurement reported by a producer tick or a batch of consumer reads.
type Sample struct {
	Tick         uint64
	TickDuration time.Duration
	Bytes        int
	Messages     int
	Candidates   int // candidate pairs examined by the flocking pass
	Dropped      int
	Stats        FlockStats
}

// toStruct packs s into the message type the monitor actor receives.
func (s Sample) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":          "sample",
		"tick":          float64(s.Tick),
		"tick_ns":       float64(s.TickDuration.Nanoseconds()),
		"bytes":         float64(s.Bytes),
		"messages":      float64(s.Messages),
		"candidates":    float64(s.Candidates),
		"dropped":       float64(s.Dropped),
		"count":         float64(s.Stats.Count),
		"mean_speed":    s.Stats.MeanSpeed,
		"speed_std_dev": s.Stats.SpeedStdDev,
		"polarization":  s.Stats.Polarization,
	})
}

// sampleFromStruct is the inverse of toStruct.
func sampleFromStruct(m *structpb.Struct) (Sample, error) {
	f := m.GetFields()
	if kind := f["kind"].GetStringValue(); kind != "sample" {
		return Sample{}, fmt.Errorf("unexpected message kind %q", kind)
	}
	num := func(k string) float64 { return f[k].GetNumberValue() }
	return Sample{
		Tick:         uint64(num("tick")),
		TickDuration: time.Duration(num("tick_ns")),
		Bytes:        int(num("bytes")),
		Messages:     int(num("messages")),
		Candidates:   int(num("candidates")),
		Dropped:      int(num("dropped")),
		Stats: FlockStats{
			Count:        int(num("count")),
			MeanSpeed:    num("mean_speed"),
			SpeedStdDev:  num("speed_std_dev"),
			Polarization: num("polarization"),
		},
	}, nil
}
