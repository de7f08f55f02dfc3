package fastview

import (
	"context"
	"errors"

	channerics "github.com/niceyeti/channerics/channels"
)

var (
	// ErrNoViews is returned by Build when no WithView call preceded it.
	ErrNoViews error = errors.New("no views to build: WithView must be called")
	// ErrNoModel is returned by Build when WithModel was not called, or was given a nil source.
	ErrNoModel error = errors.New("no model specified: WithModel must be called")
)

// ViewBuilderFunc builds a view reading view-models from its input until done is closed.
type ViewBuilderFunc[ViewModel any] func(done <-chan struct{}, input <-chan ViewModel) ViewComponent

// ViewBuilder wires several views to one stream of data: each item of the source is
// converted once to a view-model, which every view then receives. For the live page the
// source is solver progress and the views share its Frame.
type ViewBuilder[DataModel any, ViewModel any] struct {
	source  <-chan DataModel
	convert func(DataModel) ViewModel
	views   []ViewBuilderFunc[ViewModel]
	done    <-chan struct{}
}

func NewViewBuilder[DataModel any, ViewModel any]() *ViewBuilder[DataModel, ViewModel] {
	return &ViewBuilder[DataModel, ViewModel]{}
}

// WithModel sets the data source and its view-model conversion.
func (vb *ViewBuilder[DataModel, ViewModel]) WithModel(
	source <-chan DataModel,
	convert func(DataModel) ViewModel,
) *ViewBuilder[DataModel, ViewModel] {
	vb.source, vb.convert = source, convert
	return vb
}

// WithView appends a view; Build returns views in the order they were appended.
func (vb *ViewBuilder[DataModel, ViewModel]) WithView(
	build ViewBuilderFunc[ViewModel],
) *ViewBuilder[DataModel, ViewModel] {
	vb.views = append(vb.views, build)
	return vb
}

// WithContext closes every channel of the built pipeline once ctx is done. Without it
// the pipeline lives as long as its source stays open.
func (vb *ViewBuilder[DataModel, ViewModel]) WithContext(
	ctx context.Context,
) *ViewBuilder[DataModel, ViewModel] {
	vb.done = ctx.Done()
	return vb
}

// Build starts the conversion and broadcast goroutines and returns the built views.
func (vb *ViewBuilder[DataModel, ViewModel]) Build() ([]ViewComponent, error) {
	switch {
	case len(vb.views) == 0:
		return nil, ErrNoViews
	case vb.source == nil || vb.convert == nil:
		return nil, ErrNoModel
	}

	inputs := channerics.Broadcast(
		vb.done,
		channerics.Convert(vb.done, vb.source, vb.convert),
		len(vb.views))
	views := make([]ViewComponent, len(vb.views))
	for i, build := range vb.views {
		views[i] = build(vb.done, inputs[i])
	}
	return views, nil
}
