package models

import (
	"errors"
	"fmt"
	"math"
)

// Model is a finite MDP whose dynamics are fully known and enumerable.
// The action set is the same for every state. Solvers treat a Model as read-only.
//
// Terminal convention: a transition flagged Terminal must lead to an absorbing state,
// one whose every action loops back to itself with probability 1 and reward 0. Solvers
// do not special-case the Terminal flag; they always add the discounted value of the
// successor, so the model itself must make terminal continuations worth nothing.
// Validate checks this.
type Model interface {
	NumStates() int
	NumActions() int
	// Transitions returns the non-empty outcome distribution of taking action in state.
	Transitions(state, action int) []Transition
}

// Transition is one outcome of taking an action: with Probability the agent lands
// in Next and receives Reward. Terminal reports whether Next ends the episode.
type Transition struct {
	Probability float64 `yaml:"probability"`
	Next        int     `yaml:"next"`
	Reward      float64 `yaml:"reward"`
	Terminal    bool    `yaml:"terminal"`
}

// ProbabilityTolerance bounds how far a transition distribution may sum from 1.
const ProbabilityTolerance = 1e-9

// ErrInvalidModel is returned for models that break the transition contract:
// bad distributions, out of range successors, or non-absorbing terminal states.
var ErrInvalidModel error = errors.New("invalid model")

// Validate checks the model contract and returns an error wrapping ErrInvalidModel
// that names the first offending state/action.
func Validate(m Model) error {
	numStates, numActions := m.NumStates(), m.NumActions()
	if numStates <= 0 || numActions <= 0 {
		return fmt.Errorf("%w: %d states and %d actions", ErrInvalidModel, numStates, numActions)
	}

	for s := 0; s < numStates; s++ {
		for a := 0; a < numActions; a++ {
			if err := validateOutcomes(m, s, a); err != nil {
				return err
			}
		}
	}

	// Terminal transitions must lead somewhere absorbing, else the continuation
	// term gamma*V[s'] silently accrues value past the end of the episode.
	for s := 0; s < numStates; s++ {
		for a := 0; a < numActions; a++ {
			for _, t := range m.Transitions(s, a) {
				if t.Terminal && !IsAbsorbing(m, t.Next) {
					return fmt.Errorf("%w: state %d action %d: terminal successor %d is not absorbing",
						ErrInvalidModel, s, a, t.Next)
				}
			}
		}
	}

	return nil
}

func validateOutcomes(m Model, s, a int) error {
	outcomes := m.Transitions(s, a)
	if len(outcomes) == 0 {
		return fmt.Errorf("%w: state %d action %d: no transitions", ErrInvalidModel, s, a)
	}

	sum := 0.0
	for _, t := range outcomes {
		if t.Probability < 0 || t.Probability > 1 || math.IsNaN(t.Probability) {
			return fmt.Errorf("%w: state %d action %d: probability %v outside [0,1]",
				ErrInvalidModel, s, a, t.Probability)
		}
		if t.Next < 0 || t.Next >= m.NumStates() {
			return fmt.Errorf("%w: state %d action %d: successor %d out of range",
				ErrInvalidModel, s, a, t.Next)
		}
		if math.IsNaN(t.Reward) || math.IsInf(t.Reward, 0) {
			return fmt.Errorf("%w: state %d action %d: reward %v is not finite",
				ErrInvalidModel, s, a, t.Reward)
		}
		sum += t.Probability
	}

	if math.Abs(sum-1.0) > ProbabilityTolerance {
		return fmt.Errorf("%w: state %d action %d: probabilities sum to %v",
			ErrInvalidModel, s, a, sum)
	}
	return nil
}

// IsAbsorbing reports whether every action in state loops back to it with zero reward.
// Zero-probability outcomes are ignored.
func IsAbsorbing(m Model, state int) bool {
	for a := 0; a < m.NumActions(); a++ {
		for _, t := range m.Transitions(state, a) {
			if t.Probability == 0 {
				continue
			}
			if t.Next != state || t.Reward != 0 {
				return false
			}
		}
	}
	return true
}

// Table is a Model over a dense [state][action] table of outcome distributions.
type Table struct {
	numActions int
	outcomes   [][][]Transition
}

// NewTable validates and wraps the passed table, indexed [state][action].
// Every state must list the same number of actions.
func NewTable(outcomes [][][]Transition) (*Table, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrInvalidModel)
	}

	numActions := len(outcomes[0])
	for s := range outcomes {
		if len(outcomes[s]) != numActions {
			return nil, fmt.Errorf("%w: state %d has %d actions, expected %d",
				ErrInvalidModel, s, len(outcomes[s]), numActions)
		}
	}

	table := &Table{
		numActions: numActions,
		outcomes:   outcomes,
	}
	if err := Validate(table); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table) NumStates() int {
	return len(t.outcomes)
}

func (t *Table) NumActions() int {
	return t.numActions
}

func (t *Table) Transitions(state, action int) []Transition {
	return t.outcomes[state][action]
}

// Absorbing returns the outcome rows of an absorbing terminal state with numActions actions.
func Absorbing(state, numActions int) [][]Transition {
	rows := make([][]Transition, numActions)
	for a := range rows {
		rows[a] = []Transition{{Probability: 1, Next: state, Reward: 0, Terminal: true}}
	}
	return rows
}
