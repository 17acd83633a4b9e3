package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed riddles.txt migrations/*.sql
var FS embed.FS

// readLines returns the non-blank, non-comment lines of an embedded file.
// Case is preserved.
func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// RiddleLines returns the built-in catalog, one "difficulty|answer|text" per entry.
func RiddleLines() ([]string, error) {
	return readLines("riddles.txt")
}

// Migrations exposes the embedded *.sql files rooted at the migrations dir.
func Migrations() (fs.FS, error) {
	return fs.Sub(FS, "migrations")
}
