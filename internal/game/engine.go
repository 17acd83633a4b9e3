// internal/game/engine.go
//
// Round engine for a single riddle game.
// Responsibilities:
//   - Drive the stage machine: start → difficulty → round → result → (round | final).
//   - Run the per-round countdown and fail the round on timeout.
//   - Call the riddle/hint/answer collaborators asynchronously and fold their
//     results back into the state.
//   - Award points exactly once per round (10, or 5 when a hint was used).
//   - Publish every state change to subscribers.
//
// Notes:
//   - All mutation happens on the goroutine running Run; intents, provider
//     results and timer ticks are queued on one channel.
//   - Provider results are tagged with the round generation they were issued
//     for; anything arriving after the round was left is dropped.
package game

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultTotalRounds    = 10
	defaultRoundSeconds   = 15
	defaultPointsCorrect  = 10
	defaultPointsWithHint = 5

	eventBuffer      = 64
	subscriberBuffer = 16
)

// Config holds the tunable game rules.
type Config struct {
	TotalRounds    int
	RoundSeconds   int
	TickInterval   time.Duration
	PointsCorrect  int
	PointsWithHint int
}

// DefaultConfig returns the classic ten rounds of fifteen seconds.
func DefaultConfig() Config {
	return Config{
		TotalRounds:    defaultTotalRounds,
		RoundSeconds:   defaultRoundSeconds,
		TickInterval:   time.Second,
		PointsCorrect:  defaultPointsCorrect,
		PointsWithHint: defaultPointsWithHint,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TotalRounds <= 0 {
		c.TotalRounds = def.TotalRounds
	}
	if c.RoundSeconds <= 0 {
		c.RoundSeconds = def.RoundSeconds
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.PointsCorrect <= 0 {
		c.PointsCorrect = def.PointsCorrect
	}
	if c.PointsWithHint <= 0 {
		c.PointsWithHint = def.PointsWithHint
	}
	return c
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

func WithConfig(cfg Config) Option { return func(e *Engine) { e.cfg = cfg.withDefaults() } }
func WithClock(c Clock) Option { return func(e *Engine) { e.countdown.clock = c } }
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.rec = r } }

// Engine owns one game. Create with New, start the loop with Run.
type Engine struct {
	riddles RiddleProvider
	hints   HintProvider
	checker AnswerChecker
	cfg     Config
	log     zerolog.Logger
	rec     Recorder

	events  chan event
	done    chan struct{}
	running atomic.Bool

	mu    sync.RWMutex // guards state
	state GameState

	// Owned by the loop goroutine.
	gen       uint64
	runCtx    context.Context
	roundCtx  context.Context
	roundStop context.CancelFunc
	countdown countdown

	subMu      sync.Mutex // guards subs
	subs       map[int]chan GameState
	nextSub    int
	subsClosed bool
}

type event any

type intentEvent struct {
	in    Intent
	reply chan dispatchReply
}

type dispatchReply struct {
	state GameState
	err   error
}

type riddleEvent struct {
	gen    uint64
	riddle Riddle
	err    error
}

type hintEvent struct {
	gen  uint64
	hint string
	err  error
}

type checkEvent struct {
	gen    uint64
	result Result
	err    error
}

// New constructs an engine in the start stage.
func New(riddles RiddleProvider, hints HintProvider, checker AnswerChecker, opts ...Option) *Engine {
	e := &Engine{
		riddles: riddles,
		hints:   hints,
		checker: checker,
		cfg:     DefaultConfig(),
		log:     log.Logger,
		rec:     nopRecorder{},
		events:  make(chan event, eventBuffer),
		done:    make(chan struct{}),
		subs:    make(map[int]chan GameState),
	}
	e.countdown.clock = realClock{}
	for _, opt := range opts {
		opt(e)
	}
	e.countdown.interval = e.cfg.TickInterval
	e.state = GameState{
		Stage:            StageStart,
		Round:            1,
		TotalRounds:      e.cfg.TotalRounds,
		SecondsRemaining: e.cfg.RoundSeconds,
		LastResult:       ResultIncorrect,
	}
	return e
}

// Run processes events until ctx is cancelled. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.runCtx = ctx
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Dispatch queues an intent and waits for the loop to apply it. The returned
// state reflects the intent. ErrInvalidTransition means it was ignored.
func (e *Engine) Dispatch(ctx context.Context, in Intent) (GameState, error) {
	reply := make(chan dispatchReply, 1)
	select {
	case e.events <- intentEvent{in: in, reply: reply}:
	case <-e.done:
		return e.Snapshot(), ErrStopped
	case <-ctx.Done():
		return e.Snapshot(), ctx.Err()
	}

	select {
	case r := <-reply:
		return r.state, r.err
	case <-e.done:
		select {
		case r := <-reply:
			return r.state, r.err
		default:
			return e.Snapshot(), ErrStopped
		}
	case <-ctx.Done():
		return e.Snapshot(), ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() GameState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe returns a channel receiving a snapshot after every state change,
// and a func to stop receiving. A slow reader loses intermediate snapshots
// but always gets the latest one. The channel is closed when the engine
// stops or cancel is called.
func (e *Engine) Subscribe() (<-chan GameState, func()) {
	ch := make(chan GameState, subscriberBuffer)

	e.subMu.Lock()
	if e.subsClosed {
		e.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

// ----------------------------- loop ----------------------------------------

func (e *Engine) post(ev event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) handle(ev event) {
	var (
		changed bool
		err     error
		reply   chan dispatchReply
	)

	e.mu.Lock()
	switch v := ev.(type) {
	case intentEvent:
		reply = v.reply
		err = e.apply(v.in)
		changed = err == nil
	case tickEvent:
		changed = e.onTick(v)
	case riddleEvent:
		changed = e.onRiddle(v)
	case hintEvent:
		changed = e.onHint(v)
	case checkEvent:
		changed = e.onCheck(v)
	}
	snap := e.state
	e.mu.Unlock()

	if reply != nil {
		reply <- dispatchReply{state: snap, err: err}
	}
	if changed {
		e.publish(snap)
	}
}

func (e *Engine) publish(s GameState) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest so the latest state is never lost.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (e *Engine) shutdown() {
	e.countdown.stop()
	if e.roundStop != nil {
		e.roundStop()
	}
	close(e.done)

	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subsClosed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// --------------------------- transitions -----------------------------------

func (e *Engine) invalid(in Intent) error {
	e.log.Debug().Str("intent", string(in.Kind)).Str("stage", string(e.state.Stage)).Msg("intent ignored")
	return fmt.Errorf("%w: %s in stage %s", ErrInvalidTransition, in.Kind, e.state.Stage)
}

// apply runs one intent against the state. Called with e.mu held.
func (e *Engine) apply(in Intent) error {
	s := &e.state
	switch in.Kind {
	case IntentStartGame:
		if s.Stage != StageStart {
			return e.invalid(in)
		}
		s.Stage = StageDifficultySelect

	case IntentSelectDifficulty:
		if s.Stage != StageDifficultySelect {
			return e.invalid(in)
		}
		d, err := ParseDifficulty(string(in.Difficulty))
		if err != nil {
			return e.invalid(in)
		}
		s.Difficulty = d
		s.Round = 1
		s.Score = 0
		e.enterRound()

	case IntentSubmitAnswer:
		if s.Stage != StageRound || s.Riddle == nil || s.Checking {
			return e.invalid(in)
		}
		s.LastAnswer = in.Answer
		s.Checking = true
		e.requestCheck(s.Riddle.Answer, in.Answer)

	case IntentRequestHint:
		if s.Stage != StageRound || s.Riddle == nil || s.Hint != "" || s.FetchingHint {
			return e.invalid(in)
		}
		s.FetchingHint = true
		e.requestHint(s.Riddle.Text)

	case IntentNextRound:
		if s.Stage != StageResult {
			return e.invalid(in)
		}
		if s.Round >= e.cfg.TotalRounds {
			e.enterFinal()
			return nil
		}
		s.Round++
		e.enterRound()

	case IntentPlayAgain:
		if s.Stage != StageFinal {
			return e.invalid(in)
		}
		s.Round = 1
		s.Score = 0
		e.enterRound()

	case IntentRetry:
		if s.Stage != StageRound || s.Riddle != nil || s.FetchingRiddle {
			return e.invalid(in)
		}
		s.Err = nil
		s.SecondsRemaining = e.cfg.RoundSeconds
		e.requestRiddle()
		e.countdown.arm(e.post)

	default:
		return e.invalid(in)
	}
	return nil
}

// newGeneration invalidates every in-flight provider call of the previous
// round and cancels their context.
func (e *Engine) newGeneration() {
	e.gen++
	if e.roundStop != nil {
		e.roundStop()
	}
	e.roundCtx, e.roundStop = context.WithCancel(e.runCtx)
}

func (e *Engine) enterRound() {
	e.newGeneration()

	s := &e.state
	s.Stage = StageRound
	s.Riddle = nil
	s.Hint = ""
	s.UsedHint = false
	s.SecondsRemaining = e.cfg.RoundSeconds
	s.LastAnswer = ""
	s.LastResult = ResultIncorrect
	s.FetchingHint = false
	s.Checking = false
	s.Err = nil

	e.log.Debug().Int("round", s.Round).Str("difficulty", string(s.Difficulty)).Msg("round started")
	e.requestRiddle()
	e.countdown.arm(e.post)
}

func (e *Engine) enterResult(r Result) {
	e.countdown.stop()
	e.newGeneration()

	s := &e.state
	s.Stage = StageResult
	s.LastResult = r
	s.FetchingRiddle = false
	s.FetchingHint = false
	s.Checking = false
	s.Err = nil

	awarded := 0
	if r == ResultCorrect {
		awarded = e.cfg.PointsCorrect
		if s.UsedHint {
			awarded = e.cfg.PointsWithHint
		}
		s.Score += awarded
	}
	e.rec.RoundFinished(s.Difficulty, r, awarded)
	e.log.Debug().Int("round", s.Round).Str("result", string(r)).Int("awarded", awarded).Int("score", s.Score).Msg("round finished")
}

func (e *Engine) enterFinal() {
	s := &e.state
	s.Stage = StageFinal
	s.Riddle = nil
	s.Hint = ""
	s.UsedHint = false
	s.LastAnswer = ""
	e.rec.GameFinished(s.Difficulty, s.Score)
	e.log.Info().Str("difficulty", string(s.Difficulty)).Int("score", s.Score).Msg("game finished")
}

// --------------------------- collaborators ---------------------------------

func (e *Engine) requestRiddle() {
	e.state.FetchingRiddle = true
	gen, ctx, d := e.gen, e.roundCtx, e.state.Difficulty
	go func() {
		r, err := e.riddles.FetchRiddle(ctx, d)
		e.post(riddleEvent{gen: gen, riddle: r, err: err})
	}()
}

func (e *Engine) requestHint(text string) {
	gen, ctx := e.gen, e.roundCtx
	go func() {
		h, err := e.hints.FetchHint(ctx, text)
		e.post(hintEvent{gen: gen, hint: h, err: err})
	}()
}

func (e *Engine) requestCheck(correct, input string) {
	gen, ctx := e.gen, e.roundCtx
	go func() {
		r, err := e.checker.CheckAnswer(ctx, correct, input)
		e.post(checkEvent{gen: gen, result: r, err: err})
	}()
}

// stale reports whether an async result belongs to a round that is over.
func (e *Engine) stale(gen uint64, what string) bool {
	if gen == e.gen && e.state.Stage == StageRound {
		return false
	}
	e.log.Debug().Str("result", what).Uint64("gen", gen).Uint64("current", e.gen).Msg("discarding stale result")
	return true
}

func (e *Engine) fail(op string, err error) {
	e.state.Err = newProviderError(op, err)
	e.rec.ProviderFailed(op)
	e.log.Warn().Err(err).Str("op", op).Int("round", e.state.Round).Msg("provider failed")
}

func (e *Engine) onRiddle(ev riddleEvent) bool {
	if e.stale(ev.gen, OpFetchRiddle) {
		return false
	}
	s := &e.state
	s.FetchingRiddle = false
	if ev.err != nil {
		e.countdown.stop()
		e.fail(OpFetchRiddle, ev.err)
		return true
	}

	r := ev.riddle
	s.Riddle = &r
	s.Hint = ""
	s.UsedHint = false
	s.SecondsRemaining = e.cfg.RoundSeconds
	s.LastAnswer = ""
	s.LastResult = ResultIncorrect
	s.Err = nil
	e.countdown.arm(e.post)
	return true
}

func (e *Engine) onHint(ev hintEvent) bool {
	if e.stale(ev.gen, OpFetchHint) {
		return false
	}
	s := &e.state
	s.FetchingHint = false
	if ev.err != nil {
		e.fail(OpFetchHint, ev.err)
		return true
	}
	if s.Hint != "" {
		return true
	}
	s.Hint = ev.hint
	s.UsedHint = true
	s.Err = nil
	e.rec.HintUsed(s.Difficulty)
	return true
}

func (e *Engine) onCheck(ev checkEvent) bool {
	if e.stale(ev.gen, OpCheckAnswer) {
		return false
	}
	s := &e.state
	s.Checking = false
	if ev.err != nil {
		e.fail(OpCheckAnswer, ev.err)
		return true
	}
	r := ResultIncorrect
	if ev.result == ResultCorrect {
		r = ResultCorrect
	}
	e.enterResult(r)
	return true
}

func (e *Engine) onTick(t tickEvent) bool {
	if !e.countdown.current(t) || e.state.Stage != StageRound {
		return false
	}
	s := &e.state
	s.SecondsRemaining--
	if s.SecondsRemaining <= 0 {
		s.SecondsRemaining = 0
		e.enterResult(ResultTimeout)
		return true
	}
	e.countdown.arm(e.post)
	return true
}
