package constraint

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// jsonState is the structural FSM node for JSON text: container depth,
// whether the cursor is inside a string literal, and whether the previous
// rune was an unconsumed backslash escape. It intentionally does not
// distinguish object-key position from array-value position — legality of
// individual value literals (numbers, true/false/null) is left to the
// schema check performed once the document closes, not to per-token
// masking.
type jsonState struct {
	depth   int
	started bool
	inStr   bool
	escaped bool
}

// step consumes one rune against state, mutating it in place. It returns
// false if the rune can never legally appear there.
func step(s *jsonState, r rune) bool {
	if s.inStr {
		if s.escaped {
			s.escaped = false
			return true
		}
		switch r {
		case '\\':
			s.escaped = true
		case '"':
			s.inStr = false
		}
		return true
	}

	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	case '{', '[':
		s.started = true
		s.depth++
		return true
	case '}', ']':
		if s.depth == 0 {
			return false
		}
		s.depth--
		return true
	case '"':
		s.started = true
		s.inStr = true
		return true
	case ':', ',':
		return s.depth > 0
	default:
		// Value-literal content (digits, true/false/null, decimal points,
		// exponents, minus signs). Precise literal grammar is left to the
		// final schema validation; at the structural level it is always
		// legal once a value or root position is reached.
		s.started = true
		return true
	}
}

// accepting reports whether state is a legal place to stop: back to depth
// zero, not mid-string, and at least one value has been started.
func (s jsonState) accepting() bool {
	return s.started && s.depth == 0 && !s.inStr
}

// JSONMasker constrains decoding to structurally valid JSON and validates
// the finished document against a compiled JSON Schema.
type JSONMasker struct {
	schema *jsonschema.Schema
	state  jsonState
	text   strings.Builder
}

// NewJSONMasker compiles schemaText (a JSON Schema document) and returns a
// masker that enforces it.
func NewJSONMasker(schemaText string) (*JSONMasker, error) {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
	if err != nil {
		return nil, fmt.Errorf("constraint: parse json schema: %w", err)
	}
	const resourceURL = "inferno://constraint/schema.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("constraint: add json schema resource: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("constraint: compile json schema: %w", err)
	}
	return &JSONMasker{schema: schema}, nil
}

func (m *JSONMasker) Permits(vocab Vocabulary, tokenID int) bool {
	cur := m.state
	for _, r := range vocab.Decode(tokenID) {
		if !step(&cur, r) {
			return false
		}
	}
	return true
}

func (m *JSONMasker) Advance(vocab Vocabulary, tokenID int) bool {
	s := vocab.Decode(tokenID)
	for _, r := range s {
		step(&m.state, r)
	}
	m.text.WriteString(s)
	if !m.state.accepting() {
		return false
	}
	return m.ValidateFinal() == nil
}

// ValidateFinal parses and validates the text accumulated so far against
// the compiled schema. Called by Advance at each accepting structural
// position.
func (m *JSONMasker) ValidateFinal() error {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(m.text.String()))
	if err != nil {
		return fmt.Errorf("constraint: accumulated text is not valid JSON: %w", err)
	}
	return m.schema.Validate(inst)
}
