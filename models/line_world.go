package models

import "fmt"

// Line world actions.
const (
	STEP_LEFT  = 0
	STEP_RIGHT = 1
)

// Two-state world actions.
const (
	STAY = 0
	MOVE = 1
)

// LineWorld builds a deterministic corridor of length states. The rightmost state is
// terminal and absorbing; stepping into it pays 1, every other step pays 0. Stepping
// left from state 0 bumps the wall and stays put.
func LineWorld(length int) (*Table, error) {
	if length < 2 {
		return nil, fmt.Errorf("%w: line world needs at least 2 states, got %d", ErrInvalidModel, length)
	}

	goal := length - 1
	outcomes := make([][][]Transition, length)
	for s := 0; s < goal; s++ {
		left := s - 1
		if left < 0 {
			left = 0
		}
		right := s + 1
		outcomes[s] = [][]Transition{
			STEP_LEFT:  {{Probability: 1, Next: left}},
			STEP_RIGHT: {{Probability: 1, Next: right, Reward: boolReward(right == goal), Terminal: right == goal}},
		}
	}
	outcomes[goal] = Absorbing(goal, 2)

	return NewTable(outcomes)
}

// TwoState builds the smallest interesting decision: in state 0 either STAY for nothing,
// or MOVE into the absorbing state 1 for a reward of 1.
func TwoState() (*Table, error) {
	return NewTable([][][]Transition{
		{
			STAY: {{Probability: 1, Next: 0, Reward: 0}},
			MOVE: {{Probability: 1, Next: 1, Reward: 1, Terminal: true}},
		},
		Absorbing(1, 2),
	})
}

func boolReward(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
