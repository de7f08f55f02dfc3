package root_view

import (
	"context"
	"html/template"
	"time"

	"policyiter/models"
	"policyiter/reinforcement"
	"policyiter/server/cell_views"
	"policyiter/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// batchRate is the period over which view updates are coalesced before being sent.
const batchRate = time.Millisecond * 20

// RootView is the main page's index.html, which is the container for all the
// view components and the wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains, fed by the solver's
// progress on grid.
func NewRootView(
	ctx context.Context,
	grid *models.GridWorld,
	progress <-chan reinforcement.Progress,
) (*RootView, error) {
	views, err := fastview.NewViewBuilder[reinforcement.Progress, cell_views.Frame]().
		WithContext(ctx).
		WithModel(progress, cell_views.Converter(grid)).
		WithView(func(
			done <-chan struct{},
			frames <-chan cell_views.Frame) fastview.ViewComponent {
			return cell_views.NewStatusView(done, frames)
		}).
		WithView(func(
			done <-chan struct{},
			frames <-chan cell_views.Frame) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, frames)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fanIn(ctx.Done(), views),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
		})

	var bodySpec string
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			err = parseErr
			return
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template sets up the client websocket and aggregates the views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>Policy iteration</title>
			<script>
				const ws = new WebSocket("ws://" + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}
			</script>
		</head>
		<body>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// fanIn aggregates the views' ele-update channels into a single, batched channel.
func fanIn(
	done <-chan struct{},
	views []fastview.ViewComponent,
) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(
		done,
		channerics.Merge(done, inputs...),
		batchRate)
}

// batchify collects updates for the passed period before sending them as one batch,
// overwriting previously received values for the same ele-id so that only the latest
// values are sent. A pending batch is flushed when the source closes.
func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		data := map[string]fastview.EleUpdate{}
		order := []string{}
		flush := func() bool {
			if len(order) == 0 {
				return true
			}
			batch := make([]fastview.EleUpdate, len(order))
			for i, id := range order {
				batch[i] = data[id]
			}
			select {
			case output <- batch:
				data = map[string]fastview.EleUpdate{}
				order = order[:0]
				return true
			case <-done:
				return false
			}
		}

		ticker := channerics.NewTicker(done, rate)
		for {
			select {
			case <-done:
				return
			case updates, ok := <-source:
				if !ok {
					flush()
					return
				}
				for _, update := range updates {
					if _, seen := data[update.EleId]; !seen {
						order = append(order, update.EleId)
					}
					data[update.EleId] = update
				}
			case <-ticker:
				if !flush() {
					return
				}
			}
		}
	}()

	return output
}
