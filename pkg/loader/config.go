package loader

import (
	"asyncimage/pkg/codec"
	"asyncimage/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// Configuration is fixed for the lifetime of a Controller. Start from
// DefaultConfiguration; the zero value disables animation suppression.
type Configuration struct {
	// SkipCache bypasses the synchronous cache lookup and forces every
	// fetch to the network.
	SkipCache bool
	// Scale is handed to the codec. Non-positive values mean 1.
	Scale float64
	// Animation is passed through untouched on animated transitions.
	Animation any
	// SuppressAnimationOnCacheHit turns off animation for transitions caused
	// by a cache-served response.
	SuppressAnimationOnCacheHit bool

	// Logger receives diagnostics. Nil disables logging.
	Logger logrus.FieldLogger
	// Codec decodes fetched bytes. Nil selects codec.NewDecoder.
	Codec codec.Codec
	// Metrics receives load counters. Nil records nothing.
	Metrics *metrics.Metrics
}

// DefaultConfiguration returns scale 1 with cache-hit animation suppressed.
func DefaultConfiguration() Configuration {
	return Configuration{
		Scale:                       1,
		SuppressAnimationOnCacheHit: true,
	}
}
