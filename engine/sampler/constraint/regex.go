package constraint

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// RegexMasker constrains decoding to strings a .NET-style regular
// expression would accept. regexp2 is a backtracking engine, not a DFA, so
// unlike JSONMasker this cannot track an exact automaton node: prefix
// legality is approximated by testing the accumulated text (plus
// candidate) against the pattern with a permissive ".*" suffix, and a
// candidate is only ever accepted as final once the unsuffixed pattern
// matches the whole string.
type RegexMasker struct {
	full   *regexp2.Regexp
	prefix *regexp2.Regexp
	text   strings.Builder
}

// NewRegexMasker compiles pattern for constrained decoding.
func NewRegexMasker(pattern string) (*RegexMasker, error) {
	full, err := regexp2.Compile("^(?:"+pattern+")$", regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("constraint: compile regex: %w", err)
	}
	prefix, err := regexp2.Compile("^(?:"+pattern+").*$", regexp2.Singleline)
	if err != nil {
		return nil, fmt.Errorf("constraint: compile regex prefix form: %w", err)
	}
	return &RegexMasker{full: full, prefix: prefix}, nil
}

func (m *RegexMasker) Permits(vocab Vocabulary, tokenID int) bool {
	candidate := m.text.String() + vocab.Decode(tokenID)
	ok, err := m.prefix.MatchString(candidate)
	return err == nil && ok
}

func (m *RegexMasker) Advance(vocab Vocabulary, tokenID int) bool {
	m.text.WriteString(vocab.Decode(tokenID))
	ok, err := m.full.MatchString(m.text.String())
	return err == nil && ok
}
