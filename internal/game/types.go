// internal/game/types.go
//
// Core type definitions for the riddle round engine.
// Defines:
//   - Stage: coarse phase of a game (start → difficulty → round → result → final).
//   - Difficulty, Result: small string enums used on the wire.
//   - Riddle: a text/answer pair supplied by a RiddleProvider.
//   - GameState: the snapshot the presentation layer renders.
//   - The three collaborator contracts (riddles, hints, answer checking).

package game

import (
	"context"
	"fmt"
	"strings"
)

// Stage is the coarse phase of a game.
type Stage string

const (
	StageStart            Stage = "start"
	StageDifficultySelect Stage = "difficulty"
	StageRound            Stage = "round"
	StageResult           Stage = "result"
	StageFinal            Stage = "final"
)

// Difficulty is chosen once per game, before round 1.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// Difficulties lists every selectable difficulty in display order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// ParseDifficulty accepts any casing of a known difficulty name.
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Result is the outcome of a single round.
type Result string

const (
	ResultCorrect   Result = "correct"
	ResultIncorrect Result = "incorrect"
	ResultTimeout   Result = "timeout"
)

// Riddle is immutable once fetched. Answer is the canonical lowercase form.
type Riddle struct {
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// GameState is a point-in-time copy of an engine's state.
type GameState struct {
	Stage            Stage          `json:"stage"`
	Difficulty       Difficulty     `json:"difficulty,omitempty"`
	Round            int            `json:"round"`
	TotalRounds      int            `json:"totalRounds"`
	Score            int            `json:"score"`
	Riddle           *Riddle        `json:"riddle,omitempty"`
	Hint             string         `json:"hint,omitempty"`
	UsedHint         bool           `json:"usedHint"`
	SecondsRemaining int            `json:"secondsRemaining"`
	LastAnswer       string         `json:"lastAnswer"`
	LastResult       Result         `json:"lastResult"`
	FetchingRiddle   bool           `json:"fetchingRiddle"`
	FetchingHint     bool           `json:"fetchingHint"`
	Checking         bool           `json:"checking"`
	Err              *ProviderError `json:"error,omitempty"`
}

// Redacted returns a copy safe to show the player: the answer is only
// revealed once the round is over.
func (s GameState) Redacted() GameState {
	if s.Riddle != nil && s.Stage != StageResult {
		r := *s.Riddle
		r.Answer = ""
		s.Riddle = &r
	}
	return s
}

// RiddleProvider supplies riddles for a difficulty.
type RiddleProvider interface {
	FetchRiddle(ctx context.Context, d Difficulty) (Riddle, error)
}

// HintProvider produces a hint for a riddle text.
type HintProvider interface {
	FetchHint(ctx context.Context, riddleText string) (string, error)
}

// AnswerChecker compares a typed answer against the canonical one.
type AnswerChecker interface {
	CheckAnswer(ctx context.Context, correct, input string) (Result, error)
}

// Recorder receives engine events for metrics. All methods are called from
// the engine loop and must not block.
type Recorder interface {
	RoundFinished(d Difficulty, r Result, awarded int)
	HintUsed(d Difficulty)
	ProviderFailed(op string)
	GameFinished(d Difficulty, score int)
}

type nopRecorder struct{}

func (nopRecorder) RoundFinished(Difficulty, Result, int) {}
func (nopRecorder) HintUsed(Difficulty)                   {}
func (nopRecorder) ProviderFailed(string)                 {}
func (nopRecorder) GameFinished(Difficulty, int)          {}
