// internal/game/intents.go
//
// Player intents accepted by Engine.Dispatch. The JSON shape
// {type, difficulty?, answer?} is also what the HTTP and WebSocket
// transports accept.

package game

// IntentKind names a presentation-layer action.
type IntentKind string

const (
	IntentStartGame        IntentKind = "start_game"
	IntentSelectDifficulty IntentKind = "select_difficulty"
	IntentSubmitAnswer     IntentKind = "submit_answer"
	IntentRequestHint      IntentKind = "request_hint"
	IntentNextRound        IntentKind = "next_round"
	IntentPlayAgain        IntentKind = "play_again"
	IntentRetry            IntentKind = "retry"
)

// Intent is a user action dispatched to an Engine. Difficulty is only read
// for IntentSelectDifficulty and Answer only for IntentSubmitAnswer.
type Intent struct {
	Kind       IntentKind `json:"type"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Answer     string     `json:"answer,omitempty"`
}

// StartGame leaves the start screen for difficulty selection.
func StartGame() Intent { return Intent{Kind: IntentStartGame} }

// SelectDifficulty fixes the difficulty and begins round 1.
func SelectDifficulty(d Difficulty) Intent { return Intent{Kind: IntentSelectDifficulty, Difficulty: d} }

// SubmitAnswer checks answer against the current riddle. Blank answers are
// checked like any other.
func SubmitAnswer(answer string) Intent { return Intent{Kind: IntentSubmitAnswer, Answer: answer} }

// RequestHint asks for the round's hint; at most one per round.
func RequestHint() Intent { return Intent{Kind: IntentRequestHint} }

// NextRound moves on from a result, to the next round or the final score.
func NextRound() Intent { return Intent{Kind: IntentNextRound} }

// PlayAgain starts a new game at the same difficulty.
func PlayAgain() Intent { return Intent{Kind: IntentPlayAgain} }

// Retry re-issues a riddle fetch that failed with a ProviderError.
func Retry() Intent { return Intent{Kind: IntentRetry} }
