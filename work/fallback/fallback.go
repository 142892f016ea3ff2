package fallback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"sokol-player/work/logger"
)

// State is one delivery strategy, ordered from cheapest to most conservative.
type State int

const (
	// StateAdaptive plays through an adaptive-streaming client library.
	StateAdaptive State = iota
	// StateDirectNative feeds the proxied stream straight to a player that
	// supports the format natively.
	StateDirectNative
	// StateRepackage plays the subprocess passthrough output (container
	// change, codecs untouched).
	StateRepackage
	// StateTranscode plays the fully re-encoded subprocess output. The most
	// conservative mode; there is nothing to escalate to past it.
	StateTranscode
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateAdaptive:
		return "adaptive"
	case StateDirectNative:
		return "direct-native"
	case StateRepackage:
		return "repackage"
	default:
		return "transcode"
	}
}

// Handle is one active delivery-mode resource: a player library instance, a
// stream connection, whatever the Starter allocated. The controller owns
// exactly one at a time and always closes the old handle before starting the
// next, so two delivery modes never hold upstream connections concurrently.
type Handle interface {
	Close() error
}

// Starter establishes delivery in the given state and returns the resource
// that must be torn down when the controller moves on.
type Starter func(s State) (Handle, error)

// ErrPlaybackFailed is reported to the terminal callback when the most
// conservative delivery mode has also failed.
var ErrPlaybackFailed = errors.New("playback failed in all delivery modes")

// ErrClosed is returned by operations on a torn-down controller.
var ErrClosed = errors.New("fallback controller is closed")

// DefaultWatchdog is the time-to-first-frame window in adaptive mode before
// the controller escalates.
const DefaultWatchdog = 8 * time.Second

// Options configures a Controller.
type Options struct {
	Start      Starter         // establishes each delivery mode; required
	Watchdog   time.Duration   // adaptive-mode progress window; DefaultWatchdog when zero
	OnTerminal func(err error) // invoked once when the last mode fails; optional
}

// Controller is the per-playback-attempt state machine that walks delivery
// strategies from cheapest to most conservative until one produces visible
// playback. Escalation is one-way: once transcoding starts there is no
// automatic return to a cheaper mode. All event methods are safe for
// concurrent use.
type Controller struct {
	mu         sync.Mutex
	start      Starter
	watchdog   time.Duration
	onTerminal func(error)

	state    State
	handle   Handle
	errCount int
	timer    *time.Timer
	progress bool
	began    bool
	closed   bool
	terminal bool
}

// New creates a Controller. Begin must be called to pick the initial state
// and establish delivery.
func New(opts Options) *Controller {
	wd := opts.Watchdog
	if wd <= 0 {
		wd = DefaultWatchdog
	}
	return &Controller{
		start:      opts.Start,
		watchdog:   wd,
		onTerminal: opts.OnTerminal,
	}
}

// Initial picks the starting state for the given platform capabilities:
// adaptive when the client library is available, the native element when the
// platform plays the format directly, transcoding otherwise.
func Initial(adaptiveAvailable, nativeSupported bool) State {
	switch {
	case adaptiveAvailable:
		return StateAdaptive
	case nativeSupported:
		return StateDirectNative
	default:
		return StateTranscode
	}
}

// Begin picks the initial state from the platform capabilities and
// establishes delivery.
func (c *Controller) Begin(adaptiveAvailable, nativeSupported bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.began {
		return errors.New("fallback controller already began")
	}
	c.began = true

	return c.enterLocked(Initial(adaptiveAvailable, nativeSupported))
}

// State returns the current delivery state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnProgress reports visible playback progress: it disarms the watchdog and
// resets the consecutive error count.
func (c *Controller) OnProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.progress = true
	c.errCount = 0
	c.stopTimerLocked()
}

// OnError reports one playback error in the current mode. In adaptive mode
// two consecutive errors escalate; elsewhere a single error does. An error
// while already transcoding is terminal.
func (c *Controller) OnError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch c.state {
	case StateAdaptive:
		c.errCount++
		if c.errCount >= 2 {
			c.escalateLocked("two consecutive playback errors")
		}
	case StateDirectNative, StateRepackage:
		c.escalateLocked("playback error")
	case StateTranscode:
		c.failLocked()
	}
}

// OnFatal reports an unrecoverable protocol error; it escalates immediately
// regardless of the error count, and is terminal while transcoding.
func (c *Controller) OnFatal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state == StateTranscode {
		c.failLocked()
		return
	}
	c.escalateLocked("fatal protocol error")
}

// Force switches to an explicitly chosen mode, superseding any automatic
// transition. Only the subprocess-backed modes are user-selectable.
func (c *Controller) Force(s State) error {
	if s != StateRepackage && s != StateTranscode {
		return fmt.Errorf("state %s is not user-selectable", s)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	logger.Debug("{fallback/fallback - Force} Manual switch to %s", s)
	return c.enterLocked(s)
}

// Close tears the controller down, disposing the active delivery handle.
// Further events are ignored.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	return c.disposeLocked()
}

// escalateLocked moves to transcoding, the mode every automatic transition
// lands on.
func (c *Controller) escalateLocked(reason string) {
	logger.Debug("{fallback/fallback - escalate} %s -> %s: %s", c.state, StateTranscode, reason)
	if err := c.enterLocked(StateTranscode); err != nil {
		c.failLocked()
	}
}

// enterLocked transitions to state s: disposes the previous delivery handle
// first, then starts the new mode and arms the adaptive watchdog when
// applicable.
func (c *Controller) enterLocked(s State) error {
	c.stopTimerLocked()
	if err := c.disposeLocked(); err != nil {
		logger.Warn("{fallback/fallback - enter} Disposing previous handle: %v", err)
	}

	c.state = s
	c.errCount = 0
	c.progress = false

	handle, err := c.start(s)
	if err != nil {
		return fmt.Errorf("starting %s delivery: %w", s, err)
	}
	c.handle = handle

	if s == StateAdaptive {
		c.timer = time.AfterFunc(c.watchdog, c.watchdogFired)
	}
	return nil
}

// watchdogFired escalates when adaptive mode produced no visible progress
// within the watchdog window.
func (c *Controller) watchdogFired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.progress || c.state != StateAdaptive {
		return
	}
	c.escalateLocked("no progress within watchdog window")
}

// failLocked marks the terminal failure and reports it exactly once.
func (c *Controller) failLocked() {
	if c.terminal {
		return
	}
	c.terminal = true
	c.stopTimerLocked()
	if err := c.disposeLocked(); err != nil {
		logger.Warn("{fallback/fallback - fail} Disposing handle: %v", err)
	}
	logger.Error("{fallback/fallback - fail} Playback failed in the most conservative mode")
	if c.onTerminal != nil {
		c.onTerminal(ErrPlaybackFailed)
	}
}

func (c *Controller) disposeLocked() error {
	if c.handle == nil {
		return nil
	}
	h := c.handle
	c.handle = nil
	return h.Close()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
