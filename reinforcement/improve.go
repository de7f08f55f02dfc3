package reinforcement

import (
	"fmt"

	"policyiter/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Improve returns the policy greedy with respect to the one-step lookahead action-values
// of v, along with those action-values:
//
//	Q[s,a] = sum_(p,s',r) p*(r + gamma*V[s'])
//
// All actions whose value ties the state's best share its probability mass equally,
// rather than one of them being picked arbitrarily, so the result depends only on v.
// A state whose actions all tie gets a uniform row. Ties are detected within the
// WithTieTolerance epsilon instead of by exact float equality, so that rounding noise
// accumulated during evaluation does not break a tie.
//
// Q is returned for inspection only.
func Improve(
	model models.Model,
	v []float64,
	numActions, numStates int,
	gamma float64,
	opts ...Option,
) (policy *mat.Dense, q *mat.Dense, err error) {
	o := newOptions(opts)
	if numStates != model.NumStates() || numActions != model.NumActions() {
		return nil, nil, fmt.Errorf("%w: %d states and %d actions for a model of %d and %d",
			ErrDimension, numStates, numActions, model.NumStates(), model.NumActions())
	}
	if numStates <= 0 || numActions <= 0 {
		return nil, nil, fmt.Errorf("%w: %d states and %d actions", ErrDimension, numStates, numActions)
	}
	if len(v) != numStates {
		return nil, nil, fmt.Errorf("%w: %d values for %d states", ErrDimension, len(v), numStates)
	}
	if !validDiscountRate(gamma) {
		return nil, nil, fmt.Errorf("%w: discount rate %v not in (0,1]", ErrInvalidConfig, gamma)
	}
	if !(o.tieTolerance >= 0) {
		return nil, nil, fmt.Errorf("%w: tie tolerance %v", ErrInvalidConfig, o.tieTolerance)
	}

	q = mat.NewDense(numStates, numActions, nil)
	policy = mat.NewDense(numStates, numActions, nil)
	err = sweep(numStates, o.workers, func(lo, hi int) error {
		for s := lo; s < hi; s++ {
			row := q.RawRowView(s)
			for a := range row {
				val, err := backup(model, v, s, a, gamma)
				if err != nil {
					return err
				}
				row[a] = val
			}
			greedyRow(policy.RawRowView(s), row, o.tieTolerance)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("policy improvement: %w", err)
	}
	return policy, q, nil
}

// greedyRow writes into dst the distribution splitting probability evenly over the
// actions of qRow within eps of its maximum.
func greedyRow(dst, qRow []float64, eps float64) {
	best := floats.Max(qRow)
	numBest := 0
	for _, val := range qRow {
		if best-val <= eps {
			numBest++
		}
	}
	for a, val := range qRow {
		if best-val <= eps {
			dst[a] = 1 / float64(numBest)
		} else {
			dst[a] = 0
		}
	}
}

// UniformPolicy returns the numStates x numActions policy choosing every action equally.
func UniformPolicy(numStates, numActions int) *mat.Dense {
	data := make([]float64, numStates*numActions)
	for i := range data {
		data[i] = 1 / float64(numActions)
	}
	return mat.NewDense(numStates, numActions, data)
}

// GreedyActions returns, per state, the actions holding the policy's largest probability.
func GreedyActions(policy mat.Matrix) [][]int {
	rows, cols := policy.Dims()
	actions := make([][]int, rows)
	for s := 0; s < rows; s++ {
		row := mat.Row(nil, s, policy)
		best := floats.Max(row)
		for a := 0; a < cols; a++ {
			if row[a] == best {
				actions[s] = append(actions[s], a)
			}
		}
	}
	return actions
}
