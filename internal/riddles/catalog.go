// internal/riddles/catalog.go
//
// Riddle catalog management for the round engine.
//
// Responsibilities:
//   - Load the catalog from a file (RIDDLES_FILE) or fall back to the copy
//     embedded in the binary.
//   - Index riddles by difficulty for quick picks.
//   - Pick a random riddle for a difficulty (crypto/rand).
//
// Catalog format, one riddle per line:
//   difficulty|answer|text
// Blank lines and lines starting with '#' are skipped. Answers are stored
// lowercase; difficulty names are matched case-insensitively.

package riddles

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/robalobadob/riddlerush/assets"
	"github.com/robalobadob/riddlerush/internal/game"
)

// ErrEmpty is returned when there is no riddle to pick from.
var ErrEmpty = errors.New("riddles: catalog is empty")

// Entry is one catalog line.
type Entry struct {
	Difficulty game.Difficulty
	Riddle     game.Riddle
}

// Catalog is an immutable, difficulty-indexed riddle list.
type Catalog struct {
	entries []Entry
	byLevel map[game.Difficulty][]game.Riddle
}

var (
	embeddedOnce sync.Once
	embedded     *Catalog
	embeddedErr  error
)

// Load reads the catalog at path, or the embedded catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Embedded()
	}
	return LoadFile(path)
}

// Embedded returns the catalog compiled into the binary. Parsed once.
func Embedded() (*Catalog, error) {
	embeddedOnce.Do(func() {
		lines, err := assets.RiddleLines()
		if err != nil {
			embeddedErr = err
			return
		}
		embedded, embeddedErr = parseLines(lines)
	})
	return embedded, embeddedErr
}

// LoadFile parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse reads a catalog from r.
func Parse(r io.Reader) (*Catalog, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return parseLines(lines)
}

// parseLines builds a catalog; empty strings are placeholders that keep
// line numbers in error messages accurate.
func parseLines(lines []string) (*Catalog, error) {
	c := NewCatalog(nil)
	for i, line := range lines {
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		c.add(e)
	}
	if len(c.entries) == 0 {
		return nil, ErrEmpty
	}
	return c, nil
}

func parseEntry(line string) (Entry, error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Entry{}, errors.New("want difficulty|answer|text")
	}
	d, err := game.ParseDifficulty(parts[0])
	if err != nil {
		return Entry{}, err
	}
	answer := strings.ToLower(strings.TrimSpace(parts[1]))
	text := strings.TrimSpace(parts[2])
	if answer == "" || text == "" {
		return Entry{}, errors.New("empty answer or text")
	}
	return Entry{Difficulty: d, Riddle: game.Riddle{Text: text, Answer: answer}}, nil
}

// NewCatalog builds a catalog from entries, e.g. rows read from a database.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{byLevel: make(map[game.Difficulty][]game.Riddle)}
	for _, e := range entries {
		c.add(e)
	}
	return c
}

func (c *Catalog) add(e Entry) {
	c.entries = append(c.entries, e)
	c.byLevel[e.Difficulty] = append(c.byLevel[e.Difficulty], e.Riddle)
}

// Entries returns every riddle in file order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Len is the total number of riddles.
func (c *Catalog) Len() int { return len(c.entries) }

// Stats returns counts per difficulty.
func (c *Catalog) Stats() map[game.Difficulty]int {
	out := make(map[game.Difficulty]int, len(c.byLevel))
	for d, rs := range c.byLevel {
		out[d] = len(rs)
	}
	return out
}

// Pick returns a random riddle of difficulty d. If the catalog has none at
// that level it picks from the whole catalog.
func (c *Catalog) Pick(d game.Difficulty) (game.Riddle, error) {
	if pool := c.byLevel[d]; len(pool) > 0 {
		return pool[randomIndex(len(pool))], nil
	}
	if len(c.entries) == 0 {
		return game.Riddle{}, ErrEmpty
	}
	return c.entries[randomIndex(len(c.entries))].Riddle, nil
}

// randomIndex returns a cryptographically random index in [0, n).
func randomIndex(n int) int {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(nBig.Int64())
}
