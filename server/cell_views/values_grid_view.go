package cell_views

import (
	"fmt"
	"html/template"

	"policyiter/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValuesGrid draws every cell of the grid with its value and an arrow along the policy's
// expected heading, whose stroke width grows as the policy commits to one direction.
type ValuesGrid struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

// NewValuesGrid returns the grid view, updated from frames until done is closed.
func NewValuesGrid(
	done <-chan struct{},
	frames <-chan Frame,
) (vg *ValuesGrid) {
	vg = &ValuesGrid{id: "valuesgrid"}
	vg.updates = channerics.Convert(done, frames, vg.onUpdate)
	return
}

func (vg *ValuesGrid) Updates() <-chan []fastview.EleUpdate {
	return vg.updates
}

// Parse defines the grid's template, which requires the "add", "mult", "sub" and "div"
// funcs of the parent.
func (vg *ValuesGrid) Parse(parent *template.Template) (name string, err error) {
	name = vg.id
	_, err = parent.Parse(`{{ define "` + name + `" }}
		<div id="state_values">
			{{ $rows := len .Cells }}
			{{ $cols := len (index .Cells 0) }}
			{{ $cell_width := 100 }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $cols }}
			{{ $height := mult $cell_height $rows }}
			{{ $half_height := div $cell_height 2 }}
			{{ $half_width := div $cell_width 2 }}
			<svg id="` + vg.id + `-svg"
				width="{{ add $width 1 }}px"
				height="{{ add $height 1 }}px"
				style="shape-rendering: crispEdges;">
				{{ range $row := .Cells }}
					{{ range $cell := $row }}
					<g>
						<rect
							x="{{ mult $cell.X $cell_width }}"
							y="{{ mult $cell.Y $cell_height }}"
							width="{{ $cell_width }}"
							height="{{ $cell_height }}"
							fill="{{ $cell.Fill }}"
							stroke="black"
							stroke-width="1"/>
						<text id="{{$cell.X}}-{{$cell.Y}}-value-text"
							x="{{ add (mult $cell.X $cell_width) $half_width }}"
							y="{{ add (mult $cell.Y $cell_height) (sub $half_height 10) }}"
							stroke="blue"
							dominant-baseline="text-top" text-anchor="middle"
							>{{ printf "%.3f" $cell.Value }}</text>
						{{ if not $cell.Terminal }}
						<g transform="translate({{ add (mult $cell.X $cell_width) $half_width }}, {{ add (mult $cell.Y $cell_height) (add $half_height 20) }})">
							<text id="{{$cell.X}}-{{$cell.Y}}-policy-arrow"
							stroke="blue" stroke-width="{{ $cell.PolicyArrowScale }}"
							dominant-baseline="central" text-anchor="middle"
							transform="rotate({{ $cell.PolicyArrowRotation }})"
							>&uarr;</text>
						</g>
						{{ end }}
					</g>
					{{ end }}
				{{ end }}
			</svg>
		</div>
	{{ end }}`)
	return
}

// onUpdate returns the ele-updates by which the view reflects the frame.
func (vg *ValuesGrid) onUpdate(frame Frame) (ops []fastview.EleUpdate) {
	for _, row := range frame.Cells {
		for _, cell := range row {
			ops = append(ops, fastview.EleUpdate{
				EleId: fmt.Sprintf("%d-%d-value-text", cell.X, cell.Y),
				Ops: []fastview.Op{
					{Key: fastview.TextContent, Value: fmt.Sprintf("%.3f", cell.Value)},
				},
			})
			if cell.Terminal {
				continue
			}
			ops = append(ops, fastview.EleUpdate{
				EleId: fmt.Sprintf("%d-%d-policy-arrow", cell.X, cell.Y),
				Ops: []fastview.Op{
					{Key: "transform", Value: fmt.Sprintf("rotate(%d)", cell.PolicyArrowRotation)},
					{Key: "stroke-width", Value: fmt.Sprintf("%d", cell.PolicyArrowScale)},
				},
			})
		}
	}
	return
}
