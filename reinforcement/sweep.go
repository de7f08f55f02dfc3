package reinforcement

import (
	"errors"
	"fmt"

	"policyiter/models"

	"golang.org/x/sync/errgroup"
)

// ErrDimension is returned when vectors, matrices or counts disagree with the model.
var ErrDimension error = errors.New("dimension mismatch")

// sweep runs fn over [0,numStates) split into contiguous blocks, one goroutine per block.
// Blocks never overlap, so fn may write its own range of a shared slice without locking.
// With a single worker fn runs once, inline, over every state.
func sweep(numStates, workers int, fn func(lo, hi int) error) error {
	if workers <= 1 || numStates < 2 {
		return fn(0, numStates)
	}

	workers = min(workers, numStates)
	size := (numStates + workers - 1) / workers
	group := errgroup.Group{}
	for lo := 0; lo < numStates; lo += size {
		lo, hi := lo, min(lo+size, numStates)
		group.Go(func() error {
			return fn(lo, hi)
		})
	}
	return group.Wait()
}

// backup is the one-step lookahead value of taking action in state:
// sum over outcomes of p*(r + gamma*V[s']). Terminal outcomes are not special-cased.
func backup(
	model models.Model,
	values []float64,
	state, action int,
	gamma float64,
) (q float64, err error) {
	for _, t := range model.Transitions(state, action) {
		if t.Next < 0 || t.Next >= len(values) {
			return 0, fmt.Errorf("%w: state %d action %d: successor %d out of range",
				models.ErrInvalidModel, state, action, t.Next)
		}
		q += t.Probability * (t.Reward + gamma*values[t.Next])
	}
	return
}

// Option tunes Evaluate and Improve.
type Option func(*options)

type options struct {
	workers      int
	trace        bool
	tieTolerance float64
	logger       loggerFunc
}

type loggerFunc func(format string, v ...interface{})

func newOptions(opts []Option) *options {
	o := &options{
		workers:      1,
		tieTolerance: DefaultConfig().TieTolerance,
		logger:       func(string, ...interface{}) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithWorkers sweeps states over n goroutines. Results do not depend on n.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithTrace records the L2 norm of V before every evaluation sweep.
func WithTrace() Option {
	return func(o *options) {
		o.trace = true
	}
}

// WithTieTolerance sets how far below the best action-value an action may be
// and still share the improved policy's probability mass. Zero demands exact equality;
// Improve rejects negative values.
func WithTieTolerance(eps float64) Option {
	return func(o *options) {
		o.tieTolerance = eps
	}
}

// WithLogf directs warnings to logf, e.g. log.Printf.
func WithLogf(logf func(format string, v ...interface{})) Option {
	return func(o *options) {
		o.logger = logf
	}
}
