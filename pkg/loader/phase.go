package loader

import (
	"errors"
	"fmt"

	"asyncimage/pkg/codec"
)

// PhaseKind identifies the variant of a Phase.
type PhaseKind int

const (
	PhasePlaceholder PhaseKind = iota
	PhaseLoaded
	PhaseFailed
)

func (k PhaseKind) String() string {
	switch k {
	case PhasePlaceholder:
		return "placeholder"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(k))
	}
}

var errUnknownFailure = errors.New("unknown failure")

// Phase is what the component shows: a placeholder, a loaded image or the
// error that ended the last load attempt. The zero value is a placeholder.
type Phase struct {
	kind  PhaseKind
	image *codec.Image
	err   error
}

// Placeholder returns the phase shown before any image is available.
func Placeholder() Phase {
	return Phase{kind: PhasePlaceholder}
}

// Loaded returns the phase holding a decoded image.
func Loaded(img *codec.Image) Phase {
	return Phase{kind: PhaseLoaded, image: img}
}

// Failed returns the phase holding err. It never carries a nil error.
func Failed(err error) Phase {
	if err == nil {
		err = errUnknownFailure
	}
	return Phase{kind: PhaseFailed, err: err}
}

func (p Phase) Kind() PhaseKind {
	return p.kind
}

// Image returns the decoded image when the phase is loaded, nil otherwise.
func (p Phase) Image() *codec.Image {
	return p.image
}

// Err returns the load error when the phase is failed, nil otherwise.
func (p Phase) Err() error {
	return p.err
}

func (p Phase) String() string {
	if p.kind == PhaseFailed {
		return fmt.Sprintf("failed(%v)", p.err)
	}
	return p.kind.String()
}

// Transition is delivered to subscribers on every phase change.
type Transition struct {
	Phase    Phase
	Animated bool
	// Animation is the configured descriptor when Animated, nil otherwise.
	Animation any
}
