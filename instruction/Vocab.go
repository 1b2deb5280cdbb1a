// Package instruction implements the vocabulary, tokenizer, and token
// sequences of natural-language navigation instructions.
package instruction

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Reserved token ids
const (
	PAD = iota
	UNK
	BOS
	EOS
)

var reserved = []string{"<PAD>", "<UNK>", "<BOS>", "<EOS>"}

// Vocab is a bidirectional mapping between words and token ids. The
// first four ids are reserved for the padding, unknown, start and end
// tokens.
type Vocab struct {
	words []string
	index map[string]int
}

// NewVocab returns a Vocab of the reserved tokens followed by words.
// Duplicate and reserved words are ignored.
func NewVocab(words []string) *Vocab {
	v := &Vocab{index: make(map[string]int)}
	for _, w := range reserved {
		v.add(w)
	}
	for _, w := range words {
		v.add(w)
	}
	return v
}

func (v *Vocab) add(w string) {
	if _, ok := v.index[w]; ok {
		return
	}
	v.index[w] = len(v.words)
	v.words = append(v.words, w)
}

// BuildVocab builds a Vocab of every word appearing at least minCount
// times in texts. Words are ordered by decreasing frequency, with ties
// broken alphabetically.
func BuildVocab(texts []string, minCount int) *Vocab {
	counts := make(map[string]int)
	for _, t := range texts {
		for _, w := range Split(t) {
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w, c := range counts {
		if c >= minCount {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	return NewVocab(words)
}

// Len returns the number of tokens in the Vocab, including reserved
// tokens.
func (v *Vocab) Len() int {
	return len(v.words)
}

// ID returns the token id of a word, or UNK if the word is unknown.
func (v *Vocab) ID(word string) int {
	if id, ok := v.index[word]; ok {
		return id
	}
	return UNK
}

// Word returns the word of a token id.
func (v *Vocab) Word(id int) (string, error) {
	if id < 0 || id >= len(v.words) {
		return "", fmt.Errorf("word: token id %v out of range [0, %v)", id,
			len(v.words))
	}
	return v.words[id], nil
}

// Save writes the Vocab as one word per line, excluding reserved
// tokens.
func (v *Vocab) Save(w io.Writer) error {
	buf := bufio.NewWriter(w)
	for _, word := range v.words[len(reserved):] {
		if _, err := buf.WriteString(word + "\n"); err != nil {
			return errors.Wrap(err, "save")
		}
	}
	return buf.Flush()
}

// LoadVocab reads a Vocab written by Save.
func LoadVocab(r io.Reader) (*Vocab, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if w := strings.TrimSpace(scanner.Text()); w != "" {
			words = append(words, w)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "loadVocab")
	}
	return NewVocab(words), nil
}
