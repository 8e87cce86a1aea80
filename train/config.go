package train

import (
	"fmt"
	"log"
	"math"

	"github.com/kwv/rotsim/sim"
)

// Dataset modes
const (
	DatasetStatic    = "static"
	DatasetDynamic   = "dynamic"
	DatasetBeachball = "dynamic_beachball"
	DatasetCloud     = "dynamic_cloud"
	DatasetGrid      = "dynamic_grid"
)

// Config represents the full run configuration file
type Config struct {
	Epochs                int         `yaml:"epochs" json:"epochs"`
	PretrainEpochs        int         `yaml:"pretrainEpochs,omitempty" json:"pretrainEpochs,omitempty"`
	NTrain                int         `yaml:"nTrain" json:"nTrain"`
	NTest                 int         `yaml:"nTest" json:"nTest"`
	MatchesPerSample      int         `yaml:"matchesPerSample" json:"matchesPerSample"`
	BatchSizeTrain        int         `yaml:"batchSizeTrain" json:"batchSizeTrain"`
	BatchSizeTest         int         `yaml:"batchSizeTest" json:"batchSizeTest"`
	LR                    float64     `yaml:"lr" json:"lr"`
	SimSigma              float64     `yaml:"simSigma" json:"simSigma"`
	MaxRotationAngle      *float64    `yaml:"maxRotationAngle,omitempty" json:"maxRotationAngle,omitempty"` // degrees; unset means 180
	Dataset               string      `yaml:"dataset" json:"dataset"`
	BeachballSigmaFactors [4]float64  `yaml:"beachballSigmaFactors" json:"beachballSigmaFactors"`
	Double                bool        `yaml:"double" json:"double"`
	Device                string      `yaml:"device" json:"device"`
	Targets               string      `yaml:"targets" json:"targets"` // "quat" or "rotmat"
	Model                 string      `yaml:"model" json:"model"`     // "horn" or "prior"
	Seed                  int64       `yaml:"seed,omitempty" json:"seed,omitempty"`
	Cloud                 CloudConfig `yaml:"cloud,omitempty" json:"cloud,omitempty"`
	GridDim               int         `yaml:"gridDim,omitempty" json:"gridDim,omitempty"`
	MQTT                  MQTTConfig  `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
}

// CloudConfig points the dynamic_cloud dataset at a point cloud file
type CloudConfig struct {
	Path       string  `yaml:"path" json:"path"`
	Decimation int     `yaml:"decimation,omitempty" json:"decimation,omitempty"`
	Noise      float64 `yaml:"noise,omitempty" json:"noise,omitempty"`
}

// MQTTConfig holds MQTT connection settings for the metrics sink
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DefaultConfig returns the settings used when a field is absent from the file.
func DefaultConfig() *Config {
	return &Config{
		Epochs:                10,
		PretrainEpochs:        500,
		NTrain:                5000,
		NTest:                 100,
		MatchesPerSample:      100,
		BatchSizeTrain:        100,
		BatchSizeTest:         50,
		LR:                    5e-4,
		SimSigma:              0.01,
		Dataset:               DatasetDynamic,
		BeachballSigmaFactors: [4]float64{0.1, 0.5, 2, 10},
		Double:                true,
		Device:                "cpu",
		Targets:               "quat",
		Model:                 "horn",
		GridDim:               50,
	}
}

// Validate checks that the configuration describes a runnable experiment
func (c *Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.NTrain <= 0 || c.NTest <= 0 {
		return fmt.Errorf("nTrain and nTest must be positive, got %d and %d", c.NTrain, c.NTest)
	}
	if c.MatchesPerSample <= 0 {
		return fmt.Errorf("matchesPerSample must be positive, got %d", c.MatchesPerSample)
	}
	if c.BatchSizeTrain <= 0 {
		return fmt.Errorf("batchSizeTrain must be positive, got %d", c.BatchSizeTrain)
	}
	if c.BatchSizeTest <= 0 {
		return fmt.Errorf("batchSizeTest must be positive, got %d", c.BatchSizeTest)
	}
	// Batches are floor(N/batch); oversized batches run empty epochs.
	if c.BatchSizeTrain > c.NTrain {
		log.Printf("Warning: batchSizeTrain %d exceeds nTrain %d, training epochs will have no batches", c.BatchSizeTrain, c.NTrain)
	}
	if c.BatchSizeTest > c.NTest {
		log.Printf("Warning: batchSizeTest %d exceeds nTest %d, test epochs will have no batches", c.BatchSizeTest, c.NTest)
	}
	if c.SimSigma < 0 || math.IsNaN(c.SimSigma) {
		return fmt.Errorf("simSigma must be non-negative, got %v", c.SimSigma)
	}
	if c.MaxRotationAngle != nil && (*c.MaxRotationAngle <= 0 || *c.MaxRotationAngle > 180) {
		return fmt.Errorf("maxRotationAngle must be in (0, 180] degrees, got %v", *c.MaxRotationAngle)
	}

	switch c.Dataset {
	case DatasetStatic, DatasetDynamic, DatasetGrid:
	case DatasetBeachball:
		for i, f := range c.BeachballSigmaFactors {
			if f < 0 {
				return fmt.Errorf("beachballSigmaFactors[%d] must be non-negative, got %v", i, f)
			}
		}
	case DatasetCloud:
		if c.Cloud.Path == "" {
			return fmt.Errorf("cloud.path is required for dataset %s", DatasetCloud)
		}
	default:
		return fmt.Errorf("unknown dataset %q", c.Dataset)
	}

	if c.Device != "cpu" {
		return fmt.Errorf("unsupported device %q: only cpu is available", c.Device)
	}
	if c.Targets != "quat" && c.Targets != "rotmat" {
		return fmt.Errorf("unknown targets %q: want quat or rotmat", c.Targets)
	}
	if c.Model != "horn" && c.Model != "prior" {
		return fmt.Errorf("unknown model %q", c.Model)
	}
	return nil
}

// Precision returns the dataset precision selected by the double flag
func (c *Config) Precision() sim.Precision {
	if c.Double {
		return sim.Double
	}
	return sim.Single
}

// MaxAngleRadians returns the rotation angle bound in radians, or 0 for the full range
func (c *Config) MaxAngleRadians() float64 {
	if c.MaxRotationAngle == nil {
		return 0
	}
	return *c.MaxRotationAngle * math.Pi / 180
}

// TargetMode returns the validated target representation
func (c *Config) TargetMode() TargetMode {
	m, _ := ParseTargetMode(c.Targets)
	return m
}

// Dynamic reports whether data is regenerated every epoch
func (c *Config) Dynamic() bool {
	return c.Dataset != DatasetStatic
}
