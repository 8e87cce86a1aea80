package train

import (
	"fmt"

	"github.com/kwv/rotsim/sim"
)

// Model maps a minibatch of correspondence sets, laid out (batch, 2, points, 3),
// to flat per-sample outputs: (batch, 4) quaternions, (batch, 3, 3) rotation
// matrices or (batch, 10) prior vectors depending on the target mode.
type Model interface {
	Forward(b sim.MiniBatch) ([]float64, error)
	SetTraining(training bool)
}

// LossFunc returns a scalar loss for flat prediction and target buffers.
type LossFunc func(pred, target []float64) float64

// AngleFunc returns the batch mean angular error in degrees.
type AngleFunc func(est, truth []float64) float64

// Optimizer updates model parameters after a training step.
type Optimizer interface {
	ZeroGrad()
	Step(loss float64) error
}

// Sink receives scalar progress series. Implementations must accept calls
// after a failed broker connection and may drop values.
type Sink interface {
	AddScalar(series string, value float64, step int) error
	Close() error
}

// TargetMode selects what a model is trained against.
type TargetMode int

const (
	TargetQuat TargetMode = iota
	TargetRotmat
	TargetPrior
)

// ParseTargetMode parses the config targets value.
func ParseTargetMode(s string) (TargetMode, error) {
	switch s {
	case "quat", "":
		return TargetQuat, nil
	case "rotmat":
		return TargetRotmat, nil
	case "prior":
		return TargetPrior, nil
	default:
		return TargetQuat, fmt.Errorf("unknown target mode %q", s)
	}
}

func (m TargetMode) String() string {
	switch m {
	case TargetRotmat:
		return "rotmat"
	case TargetPrior:
		return "prior"
	default:
		return "quat"
	}
}

// Width is the number of output values per sample.
func (m TargetMode) Width() int {
	switch m {
	case TargetRotmat:
		return 9
	case TargetPrior:
		return sim.PriorVecLen
	default:
		return 4
	}
}

// Targets returns the flat ground truth of b in this representation.
func (m TargetMode) Targets(b sim.MiniBatch) ([]float64, error) {
	switch m {
	case TargetRotmat:
		return sim.QuatsToRotations(b.Q), nil
	case TargetPrior:
		if b.APrior == nil {
			return nil, fmt.Errorf("prior targets requested but dataset has no prior matrices")
		}
		return sim.PriorVecs(b.APrior), nil
	default:
		out := make([]float64, len(b.Q))
		copy(out, b.Q)
		return out, nil
	}
}

// Angle returns the angular metric for this mode, or nil when the outputs
// are not rotations.
func (m TargetMode) Angle() AngleFunc {
	switch m {
	case TargetQuat:
		return sim.QuatAngleDiff
	case TargetRotmat:
		return sim.RotmatAngleDiff
	default:
		return nil
	}
}
