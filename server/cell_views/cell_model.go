// cell_views contains views derived from the Frame view-model.
package cell_views

import (
	"math"

	"policyiter/models"
	"policyiter/reinforcement"

	"gonum.org/v1/gonum/mat"
)

// Cell is one grid world state, oriented in the svg coordinate system such that
// [0][0] is the cell printed at the top left of the console. Cell fields should be
// immediately usable as view parameters.
type Cell struct {
	X, Y                int
	Value               float64
	PolicyArrowRotation int
	PolicyArrowScale    int
	Fill                string
	Terminal            bool
}

// Frame is the view-model of one outer iteration: the grid's cells along with
// the iteration's summary.
type Frame struct {
	Iteration int
	Status    string
	Changed   int
	Sweeps    int
	Cells     [][]Cell
}

// Converter returns a func transforming solver progress on grid into Frames.
func Converter(grid *models.GridWorld) func(reinforcement.Progress) Frame {
	return func(p reinforcement.Progress) Frame {
		frame := Frame{
			Iteration: p.Iteration,
			Status:    p.Status.String(),
			Changed:   p.Changed,
		}
		var values []float64
		if p.Evaluation != nil {
			values = p.Evaluation.Values
			frame.Sweeps = p.Evaluation.Iterations
		}
		frame.Cells = convertCells(grid, values, p.Policy)
		return frame
	}
}

// InitialFrame is the frame for the solver's starting point: zero values under the
// uniform random policy.
func InitialFrame(grid *models.GridWorld) Frame {
	n := grid.NumStates()
	return Frame{
		Status: reinforcement.Running.String(),
		Cells:  convertCells(grid, make([]float64, n), reinforcement.UniformPolicy(n, grid.NumActions())),
	}
}

// convertCells builds the [row][col] cells of grid. Missing values are zero, and a
// nil policy draws no arrows.
func convertCells(grid *models.GridWorld, values []float64, policy *mat.Dense) [][]Cell {
	cells := make([][]Cell, grid.Rows)
	for row := range cells {
		cells[row] = make([]Cell, grid.Cols)
	}

	grid.Visit(func(state, row, col int, cell rune) {
		c := Cell{
			X:        col,
			Y:        row,
			Fill:     getFill(cell),
			Terminal: grid.IsTerminal(state),
		}
		if state < len(values) {
			c.Value = values[state]
		}
		if policy != nil && !c.Terminal {
			dx, dy := expectedHeading(policy.RawRowView(state))
			c.PolicyArrowRotation = getDegrees(dx, dy)
			c.PolicyArrowScale = getScale(dx, dy)
		}
		cells[row][col] = c
	})
	return cells
}

// headings are the unit moves of each action in svg coordinates, where y grows downward.
var headings = [models.NUM_ACTIONS][2]float64{
	models.LEFT:  {-1, 0},
	models.DOWN:  {0, 1},
	models.RIGHT: {1, 0},
	models.UP:    {0, -1},
}

// expectedHeading is the policy-weighted sum of the action headings.
func expectedHeading(probs []float64) (dx, dy float64) {
	for a, p := range probs {
		if a < len(headings) {
			dx += p * headings[a][0]
			dy += p * headings[a][1]
		}
	}
	return
}

// getScale maps the heading's length, at most 1, to an arrow stroke width of 0 to 3.
func getScale(dx, dy float64) int {
	return int(math.Round(3 * math.Hypot(dx, dy)))
}

// getDegrees converts a heading into the degrees passed to svg's rotate() transform
// for an upward arrow rune, clockwise from vertical.
func getDegrees(dx, dy float64) int {
	if dx == 0 && dy == 0 {
		return 0
	}
	return int(math.Round(math.Atan2(dx, -dy) * 180 / math.Pi))
}

func getFill(cellType rune) (fill string) {
	switch cellType {
	case models.HOLE:
		fill = "lightsteelblue"
	case models.FROZEN:
		fill = "lightgray"
	case models.START:
		fill = "lightblue"
	case models.GOAL:
		fill = "lightyellow"
	}
	return
}
