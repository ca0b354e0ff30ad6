package loader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhase(t *testing.T) {
	assert.Equal(t, PhasePlaceholder, Phase{}.Kind())
	assert.Equal(t, "placeholder", Placeholder().String())
	assert.Equal(t, "loaded", Loaded(nil).String())
	assert.Equal(t, "failed(boom)", Failed(errors.New("boom")).String())
	assert.Equal(t, "phase(7)", PhaseKind(7).String())
}

func TestFailed_NeverNil(t *testing.T) {
	p := Failed(nil)
	assert.Equal(t, PhaseFailed, p.Kind())
	assert.Error(t, p.Err())
	assert.Nil(t, p.Image())
}
