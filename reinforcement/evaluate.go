package reinforcement

import (
	"context"
	"fmt"
	"math"

	"policyiter/atomic_float"
	"policyiter/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Evaluation is the outcome of iterative policy evaluation.
type Evaluation struct {
	// Values is the state-value estimate of the evaluated policy.
	Values []float64
	// Iterations is the number of sweeps performed.
	Iterations int
	// Converged reports whether the last sweep moved no value by tol or more.
	Converged bool
	// Delta is the sup-norm change of the last sweep.
	Delta float64
	// Trace holds the L2 norm of V before each sweep, when requested with WithTrace.
	Trace []float64
}

// Evaluate computes the value function of a fixed stochastic policy by repeated
// synchronous Bellman expectation backups, starting from v0:
//
//	V_next[s] = sum_a policy[s,a] * sum_(p,s',r) p*(r + gamma*V[s'])
//
// Every sweep reads only the previous sweep's values (Jacobi, not Gauss-Seidel), which is
// also what lets WithWorkers split a sweep across goroutines. Evaluation stops once the
// largest change falls below tol, or after maxIters sweeps. Hitting the cap is not an
// error: the best-effort values are returned with Converged false and a warning logged.
//
// v0 is not modified.
func Evaluate(
	ctx context.Context,
	model models.Model,
	v0 []float64,
	policy mat.Matrix,
	gamma float64,
	maxIters int,
	tol float64,
	opts ...Option,
) (*Evaluation, error) {
	o := newOptions(opts)
	numStates, numActions := model.NumStates(), model.NumActions()
	if len(v0) != numStates {
		return nil, fmt.Errorf("%w: %d values for %d states", ErrDimension, len(v0), numStates)
	}
	if rows, cols := policy.Dims(); rows != numStates || cols != numActions {
		return nil, fmt.Errorf("%w: %dx%d policy for %d states and %d actions",
			ErrDimension, rows, cols, numStates, numActions)
	}
	if !validDiscountRate(gamma) {
		return nil, fmt.Errorf("%w: discount rate %v not in (0,1]", ErrInvalidConfig, gamma)
	}
	if maxIters <= 0 || !(tol > 0) {
		return nil, fmt.Errorf("%w: evaluation needs positive iterations and tolerance, got %d and %v",
			ErrInvalidConfig, maxIters, tol)
	}

	cur := make([]float64, numStates)
	copy(cur, v0)
	next := make([]float64, numStates)
	eval := &Evaluation{Values: cur}

	for eval.Iterations < maxIters {
		if err := ctx.Err(); err != nil {
			return eval, fmt.Errorf("policy evaluation: %w", err)
		}
		if o.trace {
			eval.Trace = append(eval.Trace, floats.Norm(cur, 2))
		}

		delta := atomic_float.NewAtomicFloat64(0)
		err := sweep(numStates, o.workers, func(lo, hi int) error {
			blockDelta := 0.0
			for s := lo; s < hi; s++ {
				outer := 0.0
				for a := 0; a < numActions; a++ {
					inner, err := backup(model, cur, s, a, gamma)
					if err != nil {
						return err
					}
					outer += policy.At(s, a) * inner
				}
				next[s] = outer
				if diff := math.Abs(outer - cur[s]); diff > blockDelta || math.IsNaN(diff) {
					blockDelta = diff
				}
			}
			delta.AtomicMax(blockDelta)
			return nil
		})
		if err != nil {
			return eval, fmt.Errorf("policy evaluation: %w", err)
		}

		cur, next = next, cur
		eval.Values = cur
		eval.Iterations++
		eval.Delta = delta.AtomicRead()
		if eval.Delta < tol {
			eval.Converged = true
			break
		}
	}

	if !eval.Converged {
		o.logger("WARNING: policy evaluation stopped after %d sweeps with delta %g >= %g",
			eval.Iterations, eval.Delta, tol)
	}
	return eval, nil
}
