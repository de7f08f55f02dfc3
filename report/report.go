// report renders the outcome of a policy iteration run: an html page of convergence
// charts, and a yaml document of the solved values and policy.
package report

import (
	"errors"
	"fmt"
	"io"

	"policyiter/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// ErrEmptyResult is returned for results without a single outer iteration.
var ErrEmptyResult error = errors.New("result has no iterations")

// WriteChart renders the convergence charts for res as an html page: evaluation sweeps
// and value norms per outer iteration, the number of states whose policy changed, and,
// when evaluations were traced, the value norm over each evaluation's sweeps.
func WriteChart(w io.Writer, title string, res *reinforcement.Result) error {
	if res == nil || len(res.Evaluations) == 0 {
		return ErrEmptyResult
	}

	iterations := make([]string, len(res.Evaluations))
	sweeps := make([]opts.LineData, len(res.Evaluations))
	norms := make([]opts.LineData, len(res.Evaluations))
	for i, eval := range res.Evaluations {
		iterations[i] = fmt.Sprintf("%d", i+1)
		sweeps[i] = opts.LineData{Value: eval.Iterations}
		norms[i] = opts.LineData{Value: floats.Norm(eval.Values, 2)}
	}

	convergence := charts.NewLine()
	convergence.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s after %d iterations", res.Status, res.Iterations),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
	)
	convergence.SetXAxis(iterations).
		AddSeries("sweeps", sweeps).
		AddSeries("value norm", norms)

	changes := make([]opts.BarData, len(res.Changes))
	for i, changed := range res.Changes {
		changes[i] = opts.BarData{Value: changed}
	}
	changed := charts.NewBar()
	changed.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Policy changes"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
	)
	changed.SetXAxis(iterations).AddSeries("states changed", changes)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(convergence, changed)
	if trace := traceChart(res); trace != nil {
		page.AddCharts(trace)
	}
	return page.Render(w)
}

// traceChart plots the value norm before every sweep of each traced evaluation,
// or returns nil if none were traced.
func traceChart(res *reinforcement.Result) *charts.Line {
	longest := 0
	for _, eval := range res.Evaluations {
		if len(eval.Trace) > longest {
			longest = len(eval.Trace)
		}
	}
	if longest == 0 {
		return nil
	}

	sweeps := make([]string, longest)
	for i := range sweeps {
		sweeps[i] = fmt.Sprintf("%d", i+1)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Evaluation traces"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sweep"}),
	)
	line.SetXAxis(sweeps)
	for i, eval := range res.Evaluations {
		items := make([]opts.LineData, len(eval.Trace))
		for j, norm := range eval.Trace {
			items[j] = opts.LineData{Value: norm}
		}
		line.AddSeries(fmt.Sprintf("iteration %d", i+1), items)
	}
	return line
}

// Solution is the exported form of a result.
type Solution struct {
	Status     string      `yaml:"status"`
	Iterations int         `yaml:"iterations"`
	Values     []float64   `yaml:"values"`
	Policy     [][]float64 `yaml:"policy"`
	Greedy     [][]int     `yaml:"greedy"`
	Q          [][]float64 `yaml:"q,omitempty"`
	Sweeps     []int       `yaml:"sweeps"`
	Changes    []int       `yaml:"changes"`
}

// NewSolution copies res into its exported form.
func NewSolution(res *reinforcement.Result) (*Solution, error) {
	if res == nil || res.Policy == nil {
		return nil, ErrEmptyResult
	}
	sol := &Solution{
		Status:     res.Status.String(),
		Iterations: res.Iterations,
		Values:     append([]float64(nil), res.Values...),
		Policy:     rows(res.Policy),
		Greedy:     reinforcement.GreedyActions(res.Policy),
		Changes:    append([]int(nil), res.Changes...),
	}
	if res.Q != nil {
		sol.Q = rows(res.Q)
	}
	for _, eval := range res.Evaluations {
		sol.Sweeps = append(sol.Sweeps, eval.Iterations)
	}
	return sol, nil
}

// WriteYaml writes res to w as a Solution document.
func WriteYaml(w io.Writer, res *reinforcement.Result) error {
	sol, err := NewSolution(res)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sol); err != nil {
		return fmt.Errorf("export solution: %w", err)
	}
	return enc.Close()
}

func rows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
