package view

import (
	"sync"

	"asyncimage/pkg/codec"
	"asyncimage/pkg/loader"
)

// Builders produce the rendered form of each phase. Any of them may be nil,
// in which case that phase renders as the zero T.
type Builders[T any] struct {
	Content     func(img *codec.Image) T
	Placeholder func() T
	Failure     func(err error) T
}

// Render picks the builder matching p.
func (b Builders[T]) Render(p loader.Phase) T {
	var zero T
	switch p.Kind() {
	case loader.PhaseLoaded:
		if b.Content != nil {
			return b.Content(p.Image())
		}
	case loader.PhaseFailed:
		if b.Failure != nil {
			return b.Failure(p.Err())
		}
	default:
		if b.Placeholder != nil {
			return b.Placeholder()
		}
	}
	return zero
}

// Frame is one rendered state of a Component.
type Frame[T any] struct {
	View      T
	Animated  bool
	Animation any
}

// Component binds a controller to builders for the lifetime of one mount.
type Component[T any] struct {
	ctrl     *loader.Controller
	builders Builders[T]
	onRender func(Frame[T])

	mu          sync.Mutex
	mounted     bool
	unsubscribe func()
}

// NewComponent creates a component. onRender is called with the initial
// frame on Mount and with a new frame on every transition while mounted.
// Calls are serialized and none happen once Unmount has returned. onRender
// must not call Mount or Unmount.
func NewComponent[T any](ctrl *loader.Controller, builders Builders[T], onRender func(Frame[T])) *Component[T] {
	return &Component[T]{
		ctrl:     ctrl,
		builders: builders,
		onRender: onRender,
	}
}

// Controller returns the underlying controller.
func (c *Component[T]) Controller() *loader.Controller {
	return c.ctrl
}

// Mount renders the current phase and attaches the controller.
func (c *Component[T]) Mount() {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.unsubscribe = c.ctrl.Subscribe(c.render)
	c.onRender(Frame[T]{View: c.builders.Render(c.ctrl.Phase())})
	c.mu.Unlock()

	c.ctrl.OnAttach()
}

// render delivers tr unless the component was unmounted in the meantime. A
// delivery already running when Unmount is called finishes first.
func (c *Component[T]) render(tr loader.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	c.onRender(Frame[T]{
		View:      c.builders.Render(tr.Phase),
		Animated:  tr.Animated,
		Animation: tr.Animation,
	})
}

// Unmount detaches the controller and stops rendering.
func (c *Component[T]) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	c.mounted = false
	c.unsubscribe()
	c.unsubscribe = nil
	c.ctrl.OnDetach()
}

// View renders the current phase without animation.
func (c *Component[T]) View() T {
	return c.builders.Render(c.ctrl.Phase())
}
