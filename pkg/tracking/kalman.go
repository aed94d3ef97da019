package tracking

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 6 // x, y, vx, vy, w, h
	measDim  = 4 // x, y, w, h

	initialCovariance = 100.0
	processNoise      = 0.05
)

// ErrSingularInnovation is returned by Correct when the innovation
// covariance cannot be inverted.
var ErrSingularInnovation = errors.New("tracking: singular innovation covariance")

// Filter is a constant-velocity Kalman filter over the face rectangle.
// The state is (x, y, vx, vy, w, h) and measurements are (x, y, w, h).
//
// Filter is not safe for concurrent use. Use Clone to test a hypothesis
// without touching the original.
type Filter struct {
	statePre  *mat.VecDense
	statePost *mat.VecDense
	covPre    *mat.Dense
	covPost   *mat.Dense

	transition  *mat.Dense // F, 6x6
	measurement *mat.Dense // H, 4x6
	procNoise   *mat.Dense // Q, 6x6
}

// NewFilter returns a filter in its reset state.
func NewFilter() *Filter {
	f := &Filter{}
	f.Reset()
	return f
}

// Reset zeroes the state and restores the initial covariances.
func (f *Filter) Reset() {
	f.statePre = mat.NewVecDense(stateDim, nil)
	f.statePost = mat.NewVecDense(stateDim, nil)
	f.covPre = scaledIdentity(stateDim, initialCovariance)
	f.covPost = scaledIdentity(stateDim, initialCovariance)
	f.transition = scaledIdentity(stateDim, 1)
	f.procNoise = scaledIdentity(stateDim, processNoise)

	f.measurement = mat.NewDense(measDim, stateDim, nil)
	f.measurement.Set(0, 0, 1)
	f.measurement.Set(1, 1, 1)
	f.measurement.Set(2, 4, 1)
	f.measurement.Set(3, 5, 1)
}

// Clone returns an independent deep copy of f.
func (f *Filter) Clone() *Filter {
	return &Filter{
		statePre:    mat.VecDenseCopyOf(f.statePre),
		statePost:   mat.VecDenseCopyOf(f.statePost),
		covPre:      mat.DenseCopyOf(f.covPre),
		covPost:     mat.DenseCopyOf(f.covPost),
		transition:  mat.DenseCopyOf(f.transition),
		measurement: mat.DenseCopyOf(f.measurement),
		procNoise:   mat.DenseCopyOf(f.procNoise),
	}
}

// Predict advances the filter by dt seconds. The posterior is set to the
// prediction, so a frame without a measurement holds the prediction.
func (f *Filter) Predict(dt float64) {
	f.transition.Set(0, 2, dt)
	f.transition.Set(1, 3, dt)

	f.statePre.MulVec(f.transition, f.statePost)

	var fp mat.Dense
	fp.Mul(f.transition, f.covPost)
	f.covPre.Mul(&fp, f.transition.T())
	f.covPre.Add(f.covPre, f.procNoise)

	f.statePost.CopyVec(f.statePre)
	f.covPost.Copy(f.covPre)
}

// Correct folds the measurement z = (x, y, w, h) into the prediction using
// an isotropic measurement noise of the given variance. On error the
// posterior keeps the prediction.
func (f *Filter) Correct(z [measDim]float64, noise float64) error {
	var pht mat.Dense
	pht.Mul(f.covPre, f.measurement.T())

	var s mat.Dense
	s.Mul(f.measurement, &pht)
	s.Add(&s, scaledIdentity(measDim, noise))

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularInnovation, err)
	}

	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	var predicted mat.VecDense
	predicted.MulVec(f.measurement, f.statePre)
	innovation := mat.NewVecDense(measDim, z[:])
	innovation.SubVec(innovation, &predicted)

	var step mat.VecDense
	step.MulVec(&gain, innovation)
	f.statePost.AddVec(f.statePre, &step)

	var kh, khp mat.Dense
	kh.Mul(&gain, f.measurement)
	khp.Mul(&kh, f.covPre)
	f.covPost.Sub(f.covPre, &khp)
	return nil
}

// State returns the posterior state (x, y, vx, vy, w, h).
func (f *Filter) State() [stateDim]float64 {
	var s [stateDim]float64
	for i := range s {
		s[i] = f.statePost.AtVec(i)
	}
	return s
}

// Variance returns the posterior variance of state component i.
func (f *Filter) Variance(i int) float64 {
	return f.covPost.At(i, i)
}

// PositionCovNorm is the norm of the posterior x and y variances. It
// drives both candidate selection and the reset decision.
func (f *Filter) PositionCovNorm() float64 {
	return math.Hypot(f.Variance(0), f.Variance(1))
}

// Uncertainty is the norm of the posterior position and size variances.
func (f *Filter) Uncertainty() float64 {
	var sum float64
	for _, i := range []int{0, 1, 4, 5} {
		v := f.Variance(i)
		sum += v * v
	}
	return math.Sqrt(sum)
}

func scaledIdentity(n int, v float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, v)
	}
	return m
}
