package instruction

import (
	"strings"
	"unicode"
)

// Split lowercases a sentence and splits it into word and punctuation
// tokens. Whitespace is discarded and each punctuation character
// becomes its own token.
func Split(sentence string) []string {
	var out []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	for _, r := range strings.ToLower(sentence) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			word.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			out = append(out, string(r))
		}
	}
	flush()
	return out
}

// Tokenizer converts between sentences and Instructions.
type Tokenizer struct {
	vocab     *Vocab
	maxLength int
}

// NewTokenizer returns a Tokenizer producing Instructions of at most
// maxLength tokens, including the start and end tokens.
func NewTokenizer(v *Vocab, maxLength int) *Tokenizer {
	if maxLength < 3 {
		maxLength = 3
	}
	return &Tokenizer{vocab: v, maxLength: maxLength}
}

// Vocab returns the Tokenizer's vocabulary
func (t *Tokenizer) Vocab() *Vocab {
	return t.vocab
}

// MaxLength returns the maximum Instruction length
func (t *Tokenizer) MaxLength() int {
	return t.maxLength
}

// Encode tokenizes a sentence into an Instruction, truncating words
// that do not fit. Unknown words map to UNK.
func (t *Tokenizer) Encode(sentence string) (Instruction, error) {
	words := Split(sentence)
	if len(words) > t.maxLength-2 {
		words = words[:t.maxLength-2]
	}

	ids := make([]int, 0, len(words)+2)
	ids = append(ids, BOS)
	for _, w := range words {
		ids = append(ids, t.vocab.ID(w))
	}
	ids = append(ids, EOS)
	return New(ids, t.vocab.Len())
}

// Decode converts an Instruction back into a space separated sentence,
// omitting reserved tokens other than UNK.
func (t *Tokenizer) Decode(instr Instruction) string {
	words := make([]string, 0, instr.Len())
	for _, id := range instr.Tokens() {
		if id == PAD || id == BOS || id == EOS {
			continue
		}
		w, err := t.vocab.Word(id)
		if err != nil {
			w = reserved[UNK]
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}
