package tick

import (
	"time"

	"go.uber.org/zap"

	"github.com/sarchlab/bindengine/activation"
)

// Builder can build hosts.
type Builder struct {
	frameDelta time.Duration
	timeScale  float64
	playing    bool
	logger     *zap.Logger
	dispatcher *activation.MainThreadDispatcher
}

// MakeBuilder creates a builder with a 60 fps frame delta, a time scale of 1
// and the host starting in edit mode.
func MakeBuilder() Builder {
	return Builder{
		frameDelta: time.Second / 60,
		timeScale:  1,
	}
}

// WithFrameDelta sets the time between frames.
func (b Builder) WithFrameDelta(d time.Duration) Builder {
	b.frameDelta = d
	return b
}

// WithTimeScale sets the factor applied to the frame delta when advancing
// the scaled clock.
func (b Builder) WithTimeScale(scale float64) Builder {
	b.timeScale = scale
	return b
}

// WithPlaying sets whether the host starts in play mode.
func (b Builder) WithPlaying(playing bool) Builder {
	b.playing = playing
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *zap.Logger) Builder {
	b.logger = l
	return b
}

// WithDispatcher sets the main-thread dispatcher pumped by the host.
func (b Builder) WithDispatcher(d *activation.MainThreadDispatcher) Builder {
	b.dispatcher = d
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.frameDelta <= 0 {
		panic("frame delta must be positive")
	}

	if b.timeScale < 0 {
		panic("time scale cannot be negative")
	}
}

// Build creates a host with the default tick tree.
func (b Builder) Build() *Host {
	b.parametersMustBeValid()

	h := &Host{
		logger:     b.logger,
		dispatcher: b.dispatcher,
		frameDelta: b.frameDelta,
		timeScale:  b.timeScale,
		playing:    b.playing,
		behaviours: make(map[Tag][]func()),
	}

	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	if h.dispatcher == nil {
		h.dispatcher = activation.NewMainThreadDispatcher().WithLogger(h.logger)
	}

	h.PlayerLoop = NewDefaultPlayerLoop(h.runScripts)

	return h
}
