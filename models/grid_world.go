package models

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
	"gonum.org/v1/gonum/mat"
)

// Lake cell types
const (
	START  = 'S'
	FROZEN = 'F'
	HOLE   = 'H'
	GOAL   = 'G'
)

// Agent moves. The order matches the classic FrozenLake encoding.
const (
	LEFT        = 0
	DOWN        = 1
	RIGHT       = 2
	UP          = 3
	NUM_ACTIONS = 4
)

// Rewards
const (
	GOAL_REWARD = 1.0
	STEP_REWARD = 0.0
)

// The classic lake maps. Row 0 is the top of the map, as printed.
var (
	Lake4x4 []string = []string{
		"SFFF",
		"FHFH",
		"FFFH",
		"HFFG",
	}

	Lake8x8 []string = []string{
		"SFFFFFFF",
		"FFFFFFFF",
		"FFFHFFFF",
		"FFFFFHFF",
		"FFFHFFFF",
		"FHHFFFHF",
		"FHFFHFHF",
		"FFFHFFFG",
	}
)

// GridWorld is a lake map converted into a tabular Model. States are numbered row-major
// from the top-left cell: state = row*Cols + col.
type GridWorld struct {
	*Table
	Rows, Cols int
	Slippery   bool
	cells      [][]rune
}

// Convert builds the lake model from its map. Entering GOAL pays GOAL_REWARD, and both
// HOLE and GOAL cells are terminal and absorbing. Moves off the map leave the agent in place.
// When slippery, the intended move and each of its two perpendicular moves are taken
// with probability 1/3 apiece; otherwise moves are deterministic.
func Convert(track []string, slippery bool) (*GridWorld, error) {
	if len(track) == 0 || len(track[0]) == 0 {
		return nil, fmt.Errorf("%w: empty map", ErrInvalidModel)
	}

	world := &GridWorld{
		Rows:     len(track),
		Cols:     len(track[0]),
		Slippery: slippery,
	}
	for row, line := range track {
		if len(line) != world.Cols {
			return nil, fmt.Errorf("%w: map row %d has width %d, expected %d",
				ErrInvalidModel, row, len(line), world.Cols)
		}
		cells := []rune(line)
		for col, cell := range cells {
			if !strings.ContainsRune("SFHG", cell) {
				return nil, fmt.Errorf("%w: unknown cell %q at (%d,%d)", ErrInvalidModel, cell, row, col)
			}
		}
		world.cells = append(world.cells, cells)
	}

	outcomes := make([][][]Transition, world.Rows*world.Cols)
	for s := range outcomes {
		if world.IsTerminal(s) {
			outcomes[s] = Absorbing(s, NUM_ACTIONS)
			continue
		}

		outcomes[s] = make([][]Transition, NUM_ACTIONS)
		for a := 0; a < NUM_ACTIONS; a++ {
			if !slippery {
				outcomes[s][a] = []Transition{world.step(s, a, 1.0)}
				continue
			}
			for _, b := range []int{(a + NUM_ACTIONS - 1) % NUM_ACTIONS, a, (a + 1) % NUM_ACTIONS} {
				outcomes[s][a] = append(outcomes[s][a], world.step(s, b, 1.0/3.0))
			}
		}
	}

	var err error
	if world.Table, err = NewTable(outcomes); err != nil {
		return nil, err
	}
	return world, nil
}

// step moves from state in the direction of action, clamped to the map.
func (world *GridWorld) step(state, action int, p float64) Transition {
	row, col := world.Position(state)
	switch action {
	case LEFT:
		col = max(col-1, 0)
	case DOWN:
		row = min(row+1, world.Rows-1)
	case RIGHT:
		col = min(col+1, world.Cols-1)
	case UP:
		row = max(row-1, 0)
	}

	next := world.State(row, col)
	reward := STEP_REWARD
	if world.CellAt(next) == GOAL {
		reward = GOAL_REWARD
	}
	return Transition{
		Probability: p,
		Next:        next,
		Reward:      reward,
		Terminal:    world.IsTerminal(next),
	}
}

// State returns the state index of a map position.
func (world *GridWorld) State(row, col int) int {
	return row*world.Cols + col
}

// Position returns the map row and column of a state.
func (world *GridWorld) Position(state int) (row, col int) {
	return state / world.Cols, state % world.Cols
}

// CellAt returns the map cell type of a state.
func (world *GridWorld) CellAt(state int) rune {
	row, col := world.Position(state)
	return world.cells[row][col]
}

// IsTerminal reports whether the state's cell ends an episode.
func (world *GridWorld) IsTerminal(state int) bool {
	cell := world.CellAt(state)
	return cell == HOLE || cell == GOAL
}

// Visit calls fn for every state, in row-major order.
func (world *GridWorld) Visit(fn func(state, row, col int, cell rune)) {
	for row := range world.cells {
		for col, cell := range world.cells[row] {
			fn(world.State(row, col), row, col, cell)
		}
	}
}

// ShowGrid prints the map, for visual reference.
func (world *GridWorld) ShowGrid(w io.Writer) {
	for row := range world.cells {
		for _, cell := range world.cells[row] {
			fmt.Fprint(w, colorCell(cell, string(cell)), " ")
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints the state values laid out on the map.
func (world *GridWorld) ShowValues(w io.Writer, values []float64) {
	fmt.Fprintln(w, "State values:")
	for row := range world.cells {
		fmt.Fprint(w, " ")
		for col, cell := range world.cells[row] {
			fmt.Fprint(w, colorCell(cell, fmt.Sprintf("%6.3f", values[world.State(row, col)])), " ")
		}
		fmt.Fprintln(w)
	}
}

// ShowPolicy prints the policy as one arrow per cell. Cells whose probability mass is
// split over several actions print '*', and terminal cells print their cell type.
func (world *GridWorld) ShowPolicy(w io.Writer, policy mat.Matrix) {
	fmt.Fprintln(w, "Policy:")
	for row := range world.cells {
		fmt.Fprint(w, " ")
		for col, cell := range world.cells[row] {
			s := world.State(row, col)
			glyph := string(cell)
			if !world.IsTerminal(s) {
				glyph = policyGlyph(mat.Row(nil, s, policy))
			}
			fmt.Fprint(w, colorCell(cell, glyph), " ")
		}
		fmt.Fprintln(w)
	}
}

var arrows = [NUM_ACTIONS]string{LEFT: "←", DOWN: "↓", RIGHT: "→", UP: "↑"}

func policyGlyph(probs []float64) string {
	glyph := "*"
	for a, p := range probs {
		if p == 1 {
			glyph = arrows[a]
		}
	}
	return glyph
}

func colorCell(cell rune, text string) aurora.Value {
	switch cell {
	case HOLE:
		return aurora.Red(text)
	case GOAL:
		return aurora.Green(text)
	case START:
		return aurora.Cyan(text)
	default:
		return aurora.Blue(text)
	}
}
