package simulation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tochemey/goakt/v3/log"
	"gopkg.in/yaml.v3"

	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-sync/pkg/syncproto"
)

//go:embed config.schema.json
var configSchema string

// Endpoint is a UDP host and port.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// FlockConfig mirrors flock.Params with serialisation tags.
type FlockConfig struct {
	SpaceWidth          float64 `json:"spaceWidth" yaml:"spaceWidth"`
	DeltaTime           float64 `json:"deltaTime" yaml:"deltaTime"`
	CellSize            float64 `json:"cellSize" yaml:"cellSize"`
	SeparationGain      float64 `json:"separationGain" yaml:"separationGain"`
	SeparationDist      float64 `json:"separationDist" yaml:"separationDist"`
	PredictionTime      float64 `json:"predictionTime" yaml:"predictionTime"`
	AlignmentGain       float64 `json:"alignmentGain" yaml:"alignmentGain"`
	AlignmentDist       float64 `json:"alignmentDist" yaml:"alignmentDist"`
	CohesionGain        float64 `json:"cohesionGain" yaml:"cohesionGain"`
	CohesionDist        float64 `json:"cohesionDist" yaml:"cohesionDist"`
	GroupSeparationGain float64 `json:"groupSeparationGain" yaml:"groupSeparationGain"`
	GroupSeparationDist float64 `json:"groupSeparationDist" yaml:"groupSeparationDist"`
	Drag                float64 `json:"drag" yaml:"drag"`
	WallRepulsion       float64 `json:"wallRepulsion" yaml:"wallRepulsion"`
	WallRepulsionDist   float64 `json:"wallRepulsionDist" yaml:"wallRepulsionDist"`
	MinSpeed            float64 `json:"minSpeed" yaml:"minSpeed"`
	MaxSpeed            float64 `json:"maxSpeed" yaml:"maxSpeed"`
	SpeedAdapt          float64 `json:"speedAdapt" yaml:"speedAdapt"`
	Randomness          float64 `json:"randomness" yaml:"randomness"`
}

// TelemetryConfig controls the monitor actor and its CSV output.
type TelemetryConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	OutputDir     string `json:"outputDir" yaml:"outputDir"`
	LogIntervalMs int    `json:"logIntervalMs" yaml:"logIntervalMs"`
}

// Config is the full runtime configuration of the sender, receiver and replay tools.
type Config struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// Sender side
	Destination Endpoint `json:"destination" yaml:"destination"`
	Source      Endpoint `json:"source" yaml:"source"`
	RateMs      int      `json:"rateMs" yaml:"rateMs"`
	SettleMs    int      `json:"settleMs" yaml:"settleMs"`
	NumObjects  int      `json:"numObjects" yaml:"numObjects"`
	Burst       int      `json:"burst" yaml:"burst"`
	Seed        uint64   `json:"seed" yaml:"seed"` // 0 picks a random seed
	UseIndex    bool     `json:"useIndex" yaml:"useIndex"`
	Capture     string   `json:"capture" yaml:"capture"` // pcap file of sent datagrams

	// Receiver side
	Listen        Endpoint `json:"listen" yaml:"listen"`
	DropMalformed bool     `json:"dropMalformed" yaml:"dropMalformed"`

	Flock     FlockConfig     `json:"flock" yaml:"flock"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// DefaultConfig returns the defaults of both command line tools.
func DefaultConfig() *Config {
	p := flock.DefaultParams()
	return &Config{
		LogLevel:    "info",
		Destination: Endpoint{Host: "127.0.0.1", Port: 34254},
		Source:      Endpoint{Host: "127.0.0.1", Port: 34255},
		RateMs:      10,
		SettleMs:    1000,
		NumObjects:  1000,
		Burst:       10,
		UseIndex:    true,
		Listen:      Endpoint{Host: "127.0.0.1", Port: 34254},
		Flock: FlockConfig{
			SpaceWidth:          p.SpaceWidth,
			DeltaTime:           p.DeltaTime,
			CellSize:            p.CellSize,
			SeparationGain:      p.SeparationGain,
			SeparationDist:      p.SeparationDist,
			PredictionTime:      p.PredictionTime,
			AlignmentGain:       p.AlignmentGain,
			AlignmentDist:       p.AlignmentDist,
			CohesionGain:        p.CohesionGain,
			CohesionDist:        p.CohesionDist,
			GroupSeparationGain: p.GroupSeparationGain,
			GroupSeparationDist: p.GroupSeparationDist,
			Drag:                p.Drag,
			WallRepulsion:       p.WallRepulsion,
			WallRepulsionDist:   p.WallRepulsionDist,
			MinSpeed:            p.MinSpeed,
			MaxSpeed:            p.MaxSpeed,
			SpeedAdapt:          p.SpeedAdapt,
			Randomness:          p.Randomness,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			LogIntervalMs: 5000,
		},
	}
}

// LoadConfig reads a JSON or YAML file (chosen by extension), validates it against the
// embedded schema and applies it over DefaultConfig. Keys absent from the file keep
// their default value.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	doc := raw
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode config yaml: %w", err)
		}
		if v == nil {
			v = map[string]any{}
		}
		if doc, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("failed to convert config yaml: %w", err)
		}
	}
	return ParseConfig(doc)
}

// ParseConfig validates a JSON document and applies it over DefaultConfig.
func ParseConfig(doc []byte) (*Config, error) {
	sch, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("failed to decode config json: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(doc, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Burst < 1 {
		return fmt.Errorf("config validation failed: burst must be >= 1, got %d", c.Burst)
	}
	if c.RateMs < 1 {
		return fmt.Errorf("config validation failed: rateMs must be >= 1, got %d", c.RateMs)
	}
	if c.NumObjects < 0 || c.NumObjects > syncproto.MaxCount {
		return fmt.Errorf("config validation failed: numObjects must be in [0, %d], got %d", syncproto.MaxCount, c.NumObjects)
	}
	if err := c.FlockParams().Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// FlockParams converts the flock section into the engine's immutable parameters.
func (c *Config) FlockParams() flock.Params {
	f := c.Flock
	return flock.Params{
		SpaceWidth:          f.SpaceWidth,
		DeltaTime:           f.DeltaTime,
		CellSize:            f.CellSize,
		SeparationGain:      f.SeparationGain,
		SeparationDist:      f.SeparationDist,
		PredictionTime:      f.PredictionTime,
		AlignmentGain:       f.AlignmentGain,
		AlignmentDist:       f.AlignmentDist,
		CohesionGain:        f.CohesionGain,
		CohesionDist:        f.CohesionDist,
		GroupSeparationGain: f.GroupSeparationGain,
		GroupSeparationDist: f.GroupSeparationDist,
		Drag:                f.Drag,
		WallRepulsion:       f.WallRepulsion,
		WallRepulsionDist:   f.WallRepulsionDist,
		MinSpeed:            f.MinSpeed,
		MaxSpeed:            f.MaxSpeed,
		SpeedAdapt:          f.SpeedAdapt,
		Randomness:          f.Randomness,
	}
}

// Interval is the sleep between two producer ticks.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.RateMs) * time.Millisecond
}

// SettleDelay is the wait before the producer binds its socket.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// LogInterval is how often the telemetry monitor reports.
func (c *Config) LogInterval() time.Duration {
	return time.Duration(c.Telemetry.LogIntervalMs) * time.Millisecond
}

// Level maps LogLevel onto the logger's levels. Unknown names fall back to info.
func (c *Config) Level() log.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarningLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
