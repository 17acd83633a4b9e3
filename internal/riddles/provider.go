// internal/riddles/provider.go
//
// Default collaborators for the round engine:
//   - CatalogProvider serves riddles from a Catalog.
//   - Hinter derives a hint from the riddle text.
//   - Checker compares the player's answer to the canonical one.
// Each accepts an optional latency that stands in for a remote service and
// honours context cancellation.

package riddles

import (
	"context"
	"strings"
	"time"

	"github.com/robalobadob/riddlerush/internal/game"
)

const hintWords = 3

// CatalogProvider serves riddles from an in-memory catalog. Latency, when
// set, simulates a remote generator.
type CatalogProvider struct {
	Catalog *Catalog
	Latency time.Duration
}

// FetchRiddle picks a random riddle of difficulty d.
func (p *CatalogProvider) FetchRiddle(ctx context.Context, d game.Difficulty) (game.Riddle, error) {
	if err := wait(ctx, p.Latency); err != nil {
		return game.Riddle{}, err
	}
	return p.Catalog.Pick(d)
}

// Hinter derives a hint from the first words of the riddle text.
type Hinter struct {
	Latency time.Duration
}

// FetchHint returns "Think about: " and the first three words of the text.
func (h Hinter) FetchHint(ctx context.Context, riddleText string) (string, error) {
	if err := wait(ctx, h.Latency); err != nil {
		return "", err
	}
	words := strings.Fields(riddleText)
	if len(words) > hintWords {
		words = words[:hintWords]
	}
	return "Think about: " + strings.Join(words, " ") + "...", nil
}

// Checker compares answers case-insensitively after trimming the input.
// There is no partial credit.
type Checker struct {
	Latency time.Duration
}

func (c Checker) CheckAnswer(ctx context.Context, correct, input string) (game.Result, error) {
	if err := wait(ctx, c.Latency); err != nil {
		return "", err
	}
	if strings.ToLower(strings.TrimSpace(input)) == strings.ToLower(correct) {
		return game.ResultCorrect, nil
	}
	return game.ResultIncorrect, nil
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
