package reinforcement

import (
	"context"
	"errors"
	"fmt"

	"policyiter/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Status is the state of a policy iteration run.
type Status int

const (
	Running Status = iota
	Converged
	ExhaustedIterations
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case ExhaustedIterations:
		return "exhausted iterations"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ErrNonConvergence is returned in strict mode when either loop hits its iteration cap.
var ErrNonConvergence error = errors.New("did not converge")

// Progress describes one completed outer iteration.
type Progress struct {
	// Iteration counts completed outer iterations, from 1.
	Iteration int
	Status    Status
	// Evaluation is the evaluation of the policy before improvement.
	Evaluation *Evaluation
	// Policy is the improved policy. Observers must not modify it.
	Policy *mat.Dense
	// Changed is the number of states whose action distribution changed.
	Changed int
}

// ProgressFunc is a callback by which the solver lends progress details after every
// outer iteration. It is synchronous and should complete quickly; it receives the run's
// context so it can abandon a blocking send on cancellation.
type ProgressFunc func(context.Context, Progress)

// Result is the outcome of a policy iteration run.
type Result struct {
	Status Status
	// Iterations is the number of outer iterations performed.
	Iterations int
	// Policy is the last improved policy.
	Policy *mat.Dense
	// Values is the value function from the last evaluation.
	Values []float64
	// Q holds the last action-values, only when Config.KeepActionValues is set.
	Q *mat.Dense
	// Evaluations has one entry per outer iteration.
	Evaluations []*Evaluation
	// Changes is the number of states whose policy changed, per outer iteration.
	Changes []int
}

// PolicyIteration alternates full policy evaluation and greedy improvement on a model,
// starting from the uniform random policy, until the policy stops changing.
type PolicyIteration struct {
	model      models.Model
	cfg        Config
	progressFn ProgressFunc
}

// NewPolicyIteration validates the model and configuration. progressFn may be nil.
func NewPolicyIteration(
	model models.Model,
	cfg Config,
	progressFn ProgressFunc,
) (*PolicyIteration, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := models.Validate(model); err != nil {
		return nil, err
	}
	return &PolicyIteration{
		model:      model,
		cfg:        cfg,
		progressFn: progressFn,
	}, nil
}

// Solve runs policy iteration on model with cfg.
func Solve(ctx context.Context, model models.Model, cfg Config) (*Result, error) {
	pi, err := NewPolicyIteration(model, cfg, nil)
	if err != nil {
		return nil, err
	}
	return pi.Run(ctx)
}

// Run iterates until two successive policies are equal within Config.OuterTolerance
// (Converged), or until Config.MaxOuterIterations (ExhaustedIterations). Exhaustion is
// logged, and is an error wrapping ErrNonConvergence only in strict mode. The result is
// returned alongside any error, reflecting the work done so far.
//
// Values carry over between outer iterations when Config.WarmStart is set, so each
// evaluation starts near its fixed point.
func (pi *PolicyIteration) Run(ctx context.Context) (*Result, error) {
	cfg := pi.cfg
	logger := cfg.logger()
	numStates, numActions := pi.model.NumStates(), pi.model.NumActions()

	opts := []Option{
		WithWorkers(cfg.Workers),
		WithTieTolerance(cfg.TieTolerance),
		WithLogf(logger.Printf),
	}
	if cfg.Trace {
		opts = append(opts, WithTrace())
	}

	res := &Result{
		Status: Running,
		Policy: UniformPolicy(numStates, numActions),
		Values: make([]float64, numStates),
	}

	for res.Iterations < cfg.MaxOuterIterations {
		seed := res.Values
		if !cfg.WarmStart {
			seed = make([]float64, numStates)
		}

		eval, err := Evaluate(
			ctx,
			pi.model,
			seed,
			res.Policy,
			cfg.DiscountRate,
			cfg.MaxInnerIterations,
			cfg.InnerTolerance,
			opts...)
		if err != nil {
			return res, fmt.Errorf("outer iteration %d: %w", res.Iterations+1, err)
		}
		res.Values = eval.Values
		res.Evaluations = append(res.Evaluations, eval)
		if !eval.Converged && cfg.Strict {
			return res, fmt.Errorf("outer iteration %d: policy evaluation %w after %d sweeps",
				res.Iterations+1, ErrNonConvergence, eval.Iterations)
		}

		improved, q, err := Improve(pi.model, eval.Values, numActions, numStates, cfg.DiscountRate, opts...)
		if err != nil {
			return res, fmt.Errorf("outer iteration %d: %w", res.Iterations+1, err)
		}
		res.Iterations++
		if cfg.KeepActionValues {
			res.Q = q
		}

		changed := changedRows(res.Policy, improved, cfg.OuterTolerance)
		res.Changes = append(res.Changes, changed)
		converged := mat.EqualApprox(improved, res.Policy, cfg.OuterTolerance)
		res.Policy = improved
		if converged {
			res.Status = Converged
		}

		if cfg.Verbose {
			logger.Printf("Iteration %d of policy iteration: %d evaluation sweeps, %d states changed",
				res.Iterations, eval.Iterations, changed)
		}
		if pi.progressFn != nil {
			pi.progressFn(ctx, Progress{
				Iteration:  res.Iterations,
				Status:     res.Status,
				Evaluation: eval,
				Policy:     improved,
				Changed:    changed,
			})
		}

		if converged {
			if cfg.Verbose {
				logger.Printf("Policy iteration converged after %d iterations", res.Iterations)
			}
			return res, nil
		}
	}

	res.Status = ExhaustedIterations
	logger.Printf("WARNING: policy iteration stopped after %d iterations without converging", res.Iterations)
	if cfg.Strict {
		return res, fmt.Errorf("policy iteration %w after %d iterations", ErrNonConvergence, res.Iterations)
	}
	return res, nil
}

// changedRows counts the states whose action distributions differ beyond tol.
func changedRows(prev, next *mat.Dense, tol float64) (changed int) {
	rows, _ := prev.Dims()
	for s := 0; s < rows; s++ {
		if !floats.EqualApprox(prev.RawRowView(s), next.RawRowView(s), tol) {
			changed++
		}
	}
	return
}
