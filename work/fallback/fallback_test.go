package fallback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle records when it was closed relative to other handles.
type fakeHandle struct {
	state  State
	rec    *recorder
	closed bool
}

func (h *fakeHandle) Close() error {
	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	h.closed = true
	h.rec.closes = append(h.rec.closes, h.state)
	return nil
}

// recorder tracks every start and close the controller performs.
type recorder struct {
	mu      sync.Mutex
	starts  []State
	closes  []State
	handles []*fakeHandle
	failOn  map[State]error
}

func newRecorder() *recorder {
	return &recorder{failOn: map[State]error{}}
}

func (r *recorder) start(s State) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, s)
	if err := r.failOn[s]; err != nil {
		return nil, err
	}
	h := &fakeHandle{state: s, rec: r}
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *recorder) startedStates() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.starts...)
}

func (r *recorder) closedStates() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.closes...)
}

func (r *recorder) openHandles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.handles {
		if !h.closed {
			n++
		}
	}
	return n
}

func TestBeginPicksInitialState(t *testing.T) {
	tests := []struct {
		name     string
		adaptive bool
		native   bool
		want     State
	}{
		{"adaptive library available", true, true, StateAdaptive},
		{"native support only", false, true, StateDirectNative},
		{"neither capability", false, false, StateTranscode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			c := New(Options{Start: rec.start})
			require.NoError(t, c.Begin(tt.adaptive, tt.native))
			defer c.Close()

			assert.Equal(t, tt.want, c.State())
			assert.Equal(t, []State{tt.want}, rec.startedStates())
		})
	}
}

func TestBeginTwiceFails(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	assert.Error(t, c.Begin(true, true))
}

func TestAdaptiveEscalatesAfterTwoConsecutiveErrors(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	c.OnError()
	assert.Equal(t, StateAdaptive, c.State(), "a single error must not escalate")

	c.OnError()
	assert.Equal(t, StateTranscode, c.State())

	// escalation is one-way; progress in transcode mode must not bring the
	// cheaper mode back
	c.OnProgress()
	assert.Equal(t, StateTranscode, c.State())
	assert.Equal(t, []State{StateAdaptive, StateTranscode}, rec.startedStates())
}

func TestProgressResetsAdaptiveErrorCount(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	c.OnError()
	c.OnProgress()
	c.OnError()
	assert.Equal(t, StateAdaptive, c.State(), "non-consecutive errors must not escalate")
}

func TestSingleErrorEscalatesOutsideAdaptive(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(false, true))
	defer c.Close()

	require.Equal(t, StateDirectNative, c.State())
	c.OnError()
	assert.Equal(t, StateTranscode, c.State())
}

func TestFatalEscalatesImmediately(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	c.OnFatal()
	assert.Equal(t, StateTranscode, c.State())
}

func TestWatchdogEscalatesWithoutProgress(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start, Watchdog: 20 * time.Millisecond})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	require.Eventually(t, func() bool {
		return c.State() == StateTranscode
	}, time.Second, 5*time.Millisecond)
}

func TestProgressDisarmsWatchdog(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start, Watchdog: 20 * time.Millisecond})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	c.OnProgress()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateAdaptive, c.State())
}

func TestPreviousHandleClosedBeforeNextStarts(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(false, true))
	defer c.Close()

	c.OnError()
	require.Equal(t, StateTranscode, c.State())

	// the direct-native handle was disposed before transcode delivery began
	assert.Equal(t, []State{StateDirectNative}, rec.closedStates())
	assert.Equal(t, 1, rec.openHandles())
}

func TestForceSelectsSubprocessModes(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(true, true))
	defer c.Close()

	require.NoError(t, c.Force(StateRepackage))
	assert.Equal(t, StateRepackage, c.State())

	require.NoError(t, c.Force(StateTranscode))
	assert.Equal(t, StateTranscode, c.State())

	assert.Error(t, c.Force(StateAdaptive))
	assert.Error(t, c.Force(StateDirectNative))
	assert.Equal(t, StateTranscode, c.State())
}

func TestTranscodeFailureIsTerminal(t *testing.T) {
	rec := newRecorder()
	var terminalErrs []error
	c := New(Options{
		Start:      rec.start,
		OnTerminal: func(err error) { terminalErrs = append(terminalErrs, err) },
	})
	require.NoError(t, c.Begin(false, false))
	defer c.Close()

	require.Equal(t, StateTranscode, c.State())
	c.OnError()
	c.OnError()
	c.OnFatal()

	require.Len(t, terminalErrs, 1, "terminal callback must fire exactly once")
	assert.True(t, errors.Is(terminalErrs[0], ErrPlaybackFailed))
	assert.Equal(t, 0, rec.openHandles())
}

func TestEscalationStartFailureIsTerminal(t *testing.T) {
	rec := newRecorder()
	rec.failOn[StateTranscode] = errors.New("no subprocess slots")
	var terminal error
	c := New(Options{
		Start:      rec.start,
		OnTerminal: func(err error) { terminal = err },
	})
	require.NoError(t, c.Begin(false, true))
	defer c.Close()

	c.OnError()
	assert.ErrorIs(t, terminal, ErrPlaybackFailed)
}

func TestCloseDisposesAndIgnoresFurtherEvents(t *testing.T) {
	rec := newRecorder()
	c := New(Options{Start: rec.start})
	require.NoError(t, c.Begin(true, true))

	require.NoError(t, c.Close())
	assert.Equal(t, 0, rec.openHandles())

	c.OnError()
	c.OnError()
	assert.Equal(t, StateAdaptive, c.State(), "events after close must be ignored")
	assert.ErrorIs(t, c.Force(StateTranscode), ErrClosed)
	assert.ErrorIs(t, c.Begin(true, true), ErrClosed)
}
