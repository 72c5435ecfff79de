// Package slug derives URL tokens from entity names and finds a free variant
// within a scope.
package slug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxAttempts bounds the number of candidates probed by Generate.
const MaxAttempts = 1000

var ErrExhausted = errors.New("slug: no free candidate")

// Letters without a canonical decomposition.
var replacer = strings.NewReplacer(
	"đ", "d", "Đ", "d",
	"ß", "ss",
	"ø", "o", "Ø", "o",
	"ł", "l", "Ł", "l",
	"æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe",
	"þ", "th", "Þ", "th",
	"&", " and ",
)

// Make lower-cases and transliterates name into a dash separated token.
func Make(name string) string {
	folded := replacer.Replace(name)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, folded)
	if err != nil {
		stripped = folded
	}

	var b strings.Builder
	b.Grow(len(stripped))
	pendingDash := false
	for _, r := range strings.ToLower(stripped) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return "n-a"
	}
	return b.String()
}

// ExistsFunc reports whether candidate is already taken in the scope.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

type Generator struct {
	Exists ExistsFunc
}

// Generate returns Make(name), or the first of name-1, name-2, ... that the
// scope does not already hold.
func (g Generator) Generate(ctx context.Context, name string) (string, error) {
	base := Make(name)
	candidate := base
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		taken, err := g.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(attempt)
	}
	return "", fmt.Errorf("%w for %q after %d attempts", ErrExhausted, base, MaxAttempts)
}
