package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const waitTimeout = 2 * time.Second

var echoRiddle = Riddle{
	Text:   "I speak without a mouth and hear without ears. What am I?",
	Answer: "echo",
}

// ----------------------------- clock ---------------------------------------

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	f     func()
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, x := range t.clock.timers {
		if x == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

// fire waits for an armed timer and runs it.
func (c *fakeClock) fire(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		c.mu.Lock()
		if len(c.timers) > 0 {
			tm := c.timers[0]
			c.timers = c.timers[1:]
			c.mu.Unlock()
			tm.f()
			return
		}
		c.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("no countdown timer armed")
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeClock) fireN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c.fire(t)
	}
}

// armed returns the timers currently scheduled.
func (c *fakeClock) armed() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

// --------------------------- providers -------------------------------------

type staticRiddles struct {
	riddle Riddle
	calls  atomic.Int32
}

func (p *staticRiddles) FetchRiddle(context.Context, Difficulty) (Riddle, error) {
	p.calls.Add(1)
	return p.riddle, nil
}

type flakyRiddles struct {
	riddle   Riddle
	failures atomic.Int32
}

func (p *flakyRiddles) FetchRiddle(context.Context, Difficulty) (Riddle, error) {
	if p.failures.Add(-1) >= 0 {
		return Riddle{}, errors.New("riddle service unavailable")
	}
	return p.riddle, nil
}

type prefixHints struct{ calls atomic.Int32 }

func (h *prefixHints) FetchHint(_ context.Context, text string) (string, error) {
	h.calls.Add(1)
	return "Think about: " + strings.Join(strings.Fields(text)[:3], " ") + "...", nil
}

type foldChecker struct{}

func (foldChecker) CheckAnswer(_ context.Context, correct, input string) (Result, error) {
	if strings.EqualFold(strings.TrimSpace(input), correct) {
		return ResultCorrect, nil
	}
	return ResultIncorrect, nil
}

// gate hands each collaborator call to the test, which answers it explicitly.
type gate[T any] struct{ calls chan gateCall[T] }

type gateCall[T any] struct {
	arg   string
	reply chan gateReply[T]
}

type gateReply[T any] struct {
	val T
	err error
}

func newGate[T any]() *gate[T] { return &gate[T]{calls: make(chan gateCall[T], 8)} }

func (g *gate[T]) wait(ctx context.Context, arg string) (T, error) {
	var zero T
	c := gateCall[T]{arg: arg, reply: make(chan gateReply[T], 1)}
	select {
	case g.calls <- c:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (g *gate[T]) next(t *testing.T) gateCall[T] {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("collaborator was not called")
		return gateCall[T]{}
	}
}

func (c gateCall[T]) resolve(v T) { c.reply <- gateReply[T]{val: v} }
func (c gateCall[T]) reject(err error) { c.reply <- gateReply[T]{err: err} }

type gatedRiddles struct{ *gate[Riddle] }

func (g gatedRiddles) FetchRiddle(ctx context.Context, d Difficulty) (Riddle, error) {
	return g.wait(ctx, string(d))
}

type gatedHints struct{ *gate[string] }

func (g gatedHints) FetchHint(ctx context.Context, text string) (string, error) {
	return g.wait(ctx, text)
}

type gatedChecker struct{ *gate[Result] }

func (g gatedChecker) CheckAnswer(ctx context.Context, _, input string) (Result, error) {
	return g.wait(ctx, input)
}

// ---------------------------- recorder -------------------------------------

type countingRecorder struct {
	mu       sync.Mutex
	results  []Result
	awarded  int
	hints    int
	failures []string
	finished []int
}

func (r *countingRecorder) RoundFinished(_ Difficulty, res Result, awarded int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	r.awarded += awarded
}

func (r *countingRecorder) HintUsed(Difficulty) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hints++
}

func (r *countingRecorder) ProviderFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, op)
}

func (r *countingRecorder) GameFinished(_ Difficulty, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, score)
}

// ----------------------------- helpers -------------------------------------

func startEngine(t *testing.T, r RiddleProvider, h HintProvider, c AnswerChecker, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	opts = append([]Option{WithClock(clk), WithLogger(zerolog.Nop())}, opts...)
	e := New(r, h, c, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-e.Done()
	})
	return e, clk
}

func dispatch(t *testing.T, e *Engine, in Intent) GameState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	s, err := e.Dispatch(ctx, in)
	if err != nil {
		t.Fatalf("dispatch %s: %v", in.Kind, err)
	}
	return s
}

func waitFor(t *testing.T, e *Engine, what string, pred func(GameState) bool) GameState {
	t.Helper()
	sub, stop := e.Subscribe()
	defer stop()
	if s := e.Snapshot(); pred(s) {
		return s
	}
	timeout := time.After(waitTimeout)
	for {
		select {
		case s, ok := <-sub:
			if !ok {
				t.Fatalf("engine stopped while waiting for %s", what)
			}
			if pred(s) {
				return s
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; state=%+v", what, e.Snapshot())
		}
	}
}

func riddleShown(s GameState) bool { return s.Stage == StageRound && s.Riddle != nil }

func inStage(st Stage) func(GameState) bool {
	return func(s GameState) bool { return s.Stage == st }
}

// beginRound drives a fresh engine to round 1 with its riddle shown.
func beginRound(t *testing.T, e *Engine, d Difficulty) GameState {
	t.Helper()
	dispatch(t, e, StartGame())
	dispatch(t, e, SelectDifficulty(d))
	return waitFor(t, e, "riddle", riddleShown)
}
