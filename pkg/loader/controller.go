package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"

	"asyncimage/pkg/cacheclient"
	"asyncimage/pkg/codec"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"
	"github.com/sirupsen/logrus"
)

// Controller drives the load lifecycle of one image for one UI component.
//
// The owner calls OnAttach when the component is mounted and OnDetach when it
// leaves the tree. Phase changes are published to subscribers. Subscriber
// callbacks run on the goroutine that made the change and must not call
// OnAttach synchronously.
type Controller struct {
	url    *url.URL
	svc    cacheclient.Service
	codec  codec.Codec
	cfg    Configuration
	logger logrus.FieldLogger

	mu         sync.Mutex
	phase      Phase
	generation uint64
	task       *task
	last       *task
	seq        uint64
	subs       []subscriber
	nextSub    int

	emitMu    sync.Mutex
	delivered uint64
}

type subscriber struct {
	id int
	fn func(Transition)
}

// task is one load attempt. Only the attempt whose generation is current may
// change the phase.
type task struct {
	id         uuid.UUID
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewController creates a controller for u, which may be nil. It performs
// no I/O.
func NewController(u *url.URL, svc cacheclient.Service, cfg Configuration) *Controller {
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	c := cfg.Codec
	if c == nil {
		c = codec.NewDecoder()
	}

	return &Controller{
		url:    u,
		svc:    svc,
		codec:  c,
		cfg:    cfg,
		logger: logger,
		phase:  Placeholder(),
	}
}

// NewControllerWithCache creates a controller whose client reads and writes
// cache.
func NewControllerWithCache(u *url.URL, cache httpcache.Cache, cfg Configuration) *Controller {
	return NewController(u, cacheclient.NewClient(cache, cacheclient.WithLogger(cfg.Logger)), cfg)
}

// URL returns the resource URL, nil when absent.
func (c *Controller) URL() *url.URL {
	return c.url
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// InFlight reports whether a load attempt is outstanding.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task != nil
}

// Subscribe registers fn for every subsequent transition.
// Returns an unsubscribe func.
func (c *Controller) Subscribe(fn func(Transition)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// OnAttach starts loading unless an image is already shown or a load is
// already in flight. A decodable entry in the cache is shown synchronously
// without animation.
func (c *Controller) OnAttach() {
	c.cfg.Metrics.RecordAttach()

	c.mu.Lock()
	if c.phase.Kind() == PhaseLoaded || c.task != nil || c.url == nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !c.cfg.SkipCache {
		if img, ok := c.cachedImage(); ok && c.applyCached(img) {
			return
		}
	}

	c.mu.Lock()
	if c.phase.Kind() == PhaseLoaded || c.task != nil {
		c.mu.Unlock()
		return
	}
	c.generation++
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:         uuid.New(),
		generation: c.generation,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	c.task = t
	c.last = t
	c.mu.Unlock()

	go c.run(t)
}

// OnDetach cancels the in-flight load, if any. The cancelled attempt reverts
// the phase to a placeholder once it notices.
func (c *Controller) OnDetach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task == nil {
		return
	}
	c.task.cancel()
	c.task = nil
}

// Wait blocks until the most recently started load attempt has settled.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	t := c.last
	c.mu.Unlock()
	if t == nil {
		return nil
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) cachedImage() (*codec.Image, bool) {
	data, ok := c.svc.Lookup(c.url)
	if !ok {
		return nil, false
	}
	img, err := c.codec.Decode(data, c.cfg.Scale)
	if err != nil {
		c.logger.WithField("url", c.url.String()).WithError(err).Debug("cached entry is not a usable image")
		return nil, false
	}
	return img, true
}

func (c *Controller) applyCached(img *codec.Image) bool {
	c.mu.Lock()
	if c.phase.Kind() == PhaseLoaded || c.task != nil {
		c.mu.Unlock()
		return true
	}
	// Supersede any cancelled attempt that has not reverted yet.
	c.generation++
	tr, seq, subs := c.setLocked(Loaded(img), false)
	c.mu.Unlock()

	c.cfg.Metrics.RecordSyncHit()
	c.logger.WithFields(logrus.Fields{
		"url":      c.url.String(),
		"phase":    tr.Phase.String(),
		"animated": tr.Animated,
	}).Debug("served from cache synchronously")
	c.emit(tr, seq, subs)
	return true
}

func (c *Controller) run(t *task) {
	defer c.finish(t)

	log := c.logger.WithFields(logrus.Fields{
		"url":     c.url.String(),
		"attempt": t.id.String(),
	})
	log.WithField("skip_cache", c.cfg.SkipCache).Debug("request started")

	res, err := c.svc.FetchWithCacheInfo(t.ctx, c.url, c.cfg.SkipCache)
	if err != nil {
		if isCancellation(t.ctx, err) {
			c.revert(t, log)
			return
		}
		log.WithError(err).Debug("request failed")
		c.apply(t, log, Failed(err), true)
		return
	}
	c.cfg.Metrics.RecordFetch(res.FromCache)
	log.WithFields(logrus.Fields{
		"bytes":      len(res.Body),
		"from_cache": res.FromCache,
	}).Debug("bytes received")

	if t.ctx.Err() != nil {
		c.revert(t, log)
		return
	}

	img, err := c.codec.Decode(res.Body, c.cfg.Scale)
	if t.ctx.Err() != nil {
		c.revert(t, log)
		return
	}
	if err != nil {
		if !errors.Is(err, codec.ErrInvalidImageData) {
			err = fmt.Errorf("%w: %v", codec.ErrInvalidImageData, err)
		}
		log.WithError(err).Debug("decode failed")
		c.apply(t, log, Failed(err), true)
		return
	}
	log.WithField("format", img.Format()).Debug("decode succeeded")

	animated := !(res.FromCache && c.cfg.SuppressAnimationOnCacheHit)
	c.apply(t, log, Loaded(img), animated)
}

func (c *Controller) revert(t *task, log logrus.FieldLogger) {
	log.Debug("request cancelled")
	c.apply(t, log, Placeholder(), false)
}

// apply changes the phase on behalf of t. Attempts superseded by a newer
// one are dropped. An attempt cancelled before this point reverts instead.
func (c *Controller) apply(t *task, log logrus.FieldLogger, p Phase, animated bool) {
	c.mu.Lock()
	if t.generation != c.generation {
		c.mu.Unlock()
		log.WithField("phase", p.String()).Debug("dropping result of superseded attempt")
		return
	}
	if t.ctx.Err() != nil {
		p, animated = Placeholder(), false
	}
	tr, seq, subs := c.setLocked(p, animated)
	c.mu.Unlock()

	switch p.Kind() {
	case PhaseLoaded:
		c.cfg.Metrics.RecordLoaded()
	case PhaseFailed:
		c.cfg.Metrics.RecordFailure()
	default:
		c.cfg.Metrics.RecordCancellation()
	}
	log.WithFields(logrus.Fields{
		"phase":    tr.Phase.String(),
		"animated": tr.Animated,
	}).Debug("phase transition")
	c.emit(tr, seq, subs)
}

func (c *Controller) finish(t *task) {
	c.mu.Lock()
	if c.task == t {
		c.task = nil
	}
	c.mu.Unlock()
	t.cancel()
	close(t.done)
}

// setLocked must be called with c.mu held.
func (c *Controller) setLocked(p Phase, animated bool) (Transition, uint64, []func(Transition)) {
	c.phase = p
	c.seq++

	tr := Transition{Phase: p, Animated: animated}
	if animated {
		tr.Animation = c.cfg.Animation
	}
	subs := make([]func(Transition), len(c.subs))
	for i, s := range c.subs {
		subs[i] = s.fn
	}
	return tr, c.seq, subs
}

// emit delivers tr unless a later transition was already delivered, so
// subscribers never end on a phase older than the current one.
func (c *Controller) emit(tr Transition, seq uint64, subs []func(Transition)) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq
	for _, fn := range subs {
		fn(tr)
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}
