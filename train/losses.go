package train

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// QuatChordalLoss is the batch mean of min(‖q - t‖², ‖q + t‖²) over xyzw
// quaternions, so q and -q score the same.
func QuatChordalLoss(pred, target []float64) float64 {
	n := len(target) / 4
	if n == 0 {
		return 0
	}
	sum := make([]float64, 4)
	diff := make([]float64, 4)
	losses := make([]float64, n)
	for i := range losses {
		p, t := pred[4*i:4*i+4], target[4*i:4*i+4]
		floats.SubTo(diff, p, t)
		floats.AddTo(sum, p, t)
		losses[i] = math.Min(floats.Dot(diff, diff), floats.Dot(sum, sum))
	}
	return floats.Sum(losses) / float64(n)
}

// RotmatFrobeniusLoss is the batch mean of ‖C - T‖²_F over 3x3 matrices.
func RotmatFrobeniusLoss(pred, target []float64) float64 {
	n := len(target) / 9
	if n == 0 {
		return 0
	}
	losses := make([]float64, n)
	for i := range losses {
		d := floats.Distance(pred[9*i:9*i+9], target[9*i:9*i+9], 2)
		losses[i] = d * d
	}
	return floats.Sum(losses) / float64(n)
}

// MSELoss is the mean squared error over all elements.
func MSELoss(pred, target []float64) float64 {
	if len(target) == 0 {
		return 0
	}
	d := floats.Distance(pred, target, 2)
	return d * d / float64(len(target))
}

// LossFor returns the default loss for a target mode.
func LossFor(mode TargetMode) LossFunc {
	switch mode {
	case TargetRotmat:
		return RotmatFrobeniusLoss
	case TargetPrior:
		return MSELoss
	default:
		return QuatChordalLoss
	}
}
