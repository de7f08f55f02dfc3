package models

import (
	"bytes"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func TestValidate(t *testing.T) {
	Convey("When validating table models", t, func() {
		Convey("Well formed tables validate", func() {
			_, err := TwoState()
			So(err, ShouldBeNil)
			_, err = LineWorld(4)
			So(err, ShouldBeNil)
		})

		Convey("Distributions not summing to one are rejected", func() {
			_, err := NewTable([][][]Transition{
				{{{Probability: 0.5, Next: 0}}},
			})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "sum")
		})

		Convey("Out of range successors are rejected", func() {
			_, err := NewTable([][][]Transition{
				{{{Probability: 1, Next: 3}}},
			})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})

		Convey("Empty outcome lists are rejected", func() {
			_, err := NewTable([][][]Transition{
				{{}},
			})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})

		Convey("Ragged action sets are rejected", func() {
			_, err := NewTable([][][]Transition{
				Absorbing(0, 2),
				Absorbing(1, 3),
			})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})

		Convey("Terminal successors must be absorbing", func() {
			_, err := NewTable([][][]Transition{
				{{{Probability: 1, Next: 1, Reward: 1, Terminal: true}}},
				{{{Probability: 1, Next: 0, Reward: 0, Terminal: true}}},
			})
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "not absorbing")
		})

		Convey("Absorbing states ignore zero-probability outcomes", func() {
			table, err := NewTable([][][]Transition{
				{{
					{Probability: 1, Next: 0},
					{Probability: 0, Next: 1, Reward: 5},
				}},
				Absorbing(1, 1),
			})
			So(err, ShouldBeNil)
			So(IsAbsorbing(table, 0), ShouldBeTrue)
			So(IsAbsorbing(table, 1), ShouldBeTrue)
		})
	})
}

func TestLineWorld(t *testing.T) {
	Convey("When building a line world", t, func() {
		world, err := LineWorld(4)
		So(err, ShouldBeNil)
		So(world.NumStates(), ShouldEqual, 4)
		So(world.NumActions(), ShouldEqual, 2)

		Convey("Stepping into the goal pays and terminates", func() {
			step := world.Transitions(2, STEP_RIGHT)[0]
			So(step.Next, ShouldEqual, 3)
			So(step.Reward, ShouldEqual, 1.0)
			So(step.Terminal, ShouldBeTrue)
		})

		Convey("Stepping left from the wall stays put", func() {
			step := world.Transitions(0, STEP_LEFT)[0]
			So(step.Next, ShouldEqual, 0)
			So(step.Reward, ShouldEqual, 0.0)
		})

		Convey("Too short lines are rejected", func() {
			_, err := LineWorld(1)
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})
	})
}

func TestGridWorld(t *testing.T) {
	Convey("When converting the 4x4 lake", t, func() {
		Convey("Deterministic moves are clamped to the map", func() {
			world, err := Convert(Lake4x4, false)
			So(err, ShouldBeNil)
			So(world.NumStates(), ShouldEqual, 16)
			So(world.NumActions(), ShouldEqual, NUM_ACTIONS)

			So(world.Transitions(0, LEFT), ShouldResemble, []Transition{{Probability: 1, Next: 0}})
			So(world.Transitions(0, UP), ShouldResemble, []Transition{{Probability: 1, Next: 0}})
			So(world.Transitions(0, RIGHT)[0].Next, ShouldEqual, 1)
			So(world.Transitions(0, DOWN)[0].Next, ShouldEqual, 4)
			// Falling into the hole at (1,1) terminates without reward.
			So(world.Transitions(1, DOWN), ShouldResemble, []Transition{{Probability: 1, Next: 5, Terminal: true}})
			// Entering the goal pays.
			So(world.Transitions(14, RIGHT), ShouldResemble, []Transition{{Probability: 1, Next: 15, Reward: GOAL_REWARD, Terminal: true}})
		})

		Convey("Holes and the goal are absorbing", func() {
			world, err := Convert(Lake4x4, false)
			So(err, ShouldBeNil)
			for _, s := range []int{5, 7, 11, 12, 15} {
				So(world.IsTerminal(s), ShouldBeTrue)
				So(IsAbsorbing(world, s), ShouldBeTrue)
			}
			So(world.IsTerminal(0), ShouldBeFalse)
		})

		Convey("Slippery moves split over the intended and perpendicular directions", func() {
			world, err := Convert(Lake4x4, true)
			So(err, ShouldBeNil)
			outcomes := world.Transitions(6, LEFT)
			So(len(outcomes), ShouldEqual, 3)
			// UP, LEFT, DOWN from (1,2)
			So(outcomes[0].Next, ShouldEqual, 2)
			So(outcomes[1].Next, ShouldEqual, 5)
			So(outcomes[2].Next, ShouldEqual, 10)
			for _, outcome := range outcomes {
				So(outcome.Probability, ShouldAlmostEqual, 1.0/3.0)
			}
		})

		Convey("Malformed maps are rejected", func() {
			_, err := Convert([]string{"SF", "F"}, false)
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
			_, err = Convert([]string{"SX", "FG"}, false)
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
			_, err = Convert(nil, false)
			So(errors.Is(err, ErrInvalidModel), ShouldBeTrue)
		})
	})

	Convey("When printing a grid world", t, func() {
		world, err := Convert(Lake4x4, false)
		So(err, ShouldBeNil)

		Convey("The policy shows single actions as arrows and splits as stars", func() {
			policy := mat.NewDense(16, NUM_ACTIONS, nil)
			for s := 0; s < 16; s++ {
				policy.Set(s, RIGHT, 1)
			}
			policy.SetRow(1, []float64{0.5, 0.5, 0, 0})

			buf := &bytes.Buffer{}
			world.ShowPolicy(buf, policy)
			So(buf.String(), ShouldContainSubstring, "→")
			So(buf.String(), ShouldContainSubstring, "*")
			So(buf.String(), ShouldContainSubstring, "G")
		})

		Convey("Values are printed per cell", func() {
			buf := &bytes.Buffer{}
			values := make([]float64, 16)
			values[14] = 1
			world.ShowValues(buf, values)
			So(buf.String(), ShouldContainSubstring, " 1.000")
		})
	})
}
