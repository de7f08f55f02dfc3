package cell_views

import (
	"fmt"
	"html/template"

	"policyiter/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// StatusView is a one-line summary of the latest outer iteration.
type StatusView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewStatusView(
	done <-chan struct{},
	frames <-chan Frame,
) (sv *StatusView) {
	sv = &StatusView{id: "status"}
	sv.updates = channerics.Convert(done, frames, sv.onUpdate)
	return
}

func (sv *StatusView) Updates() <-chan []fastview.EleUpdate {
	return sv.updates
}

func (sv *StatusView) Parse(parent *template.Template) (name string, err error) {
	name = sv.id
	_, err = parent.Parse(`{{ define "` + name + `" }}
		<p>
			Iteration <span id="` + sv.id + `-iteration">{{ .Iteration }}</span>:
			<span id="` + sv.id + `-state">{{ .Status }}</span>,
			<span id="` + sv.id + `-sweeps">{{ .Sweeps }}</span> evaluation sweeps,
			<span id="` + sv.id + `-changed">{{ .Changed }}</span> states changed
		</p>
	{{ end }}`)
	return
}

func (sv *StatusView) onUpdate(frame Frame) []fastview.EleUpdate {
	text := func(field, value string) fastview.EleUpdate {
		return fastview.EleUpdate{
			EleId: sv.id + "-" + field,
			Ops:   []fastview.Op{{Key: fastview.TextContent, Value: value}},
		}
	}
	return []fastview.EleUpdate{
		text("iteration", fmt.Sprintf("%d", frame.Iteration)),
		text("state", frame.Status),
		text("sweeps", fmt.Sprintf("%d", frame.Sweeps)),
		text("changed", fmt.Sprintf("%d", frame.Changed)),
	}
}
