package instruction

import (
	"github.com/pkg/errors"
)

// ErrInvalidInstruction is returned for token sequences that cannot be
// consumed by a model: empty sequences, out-of-vocabulary ids, and
// sequences with misplaced reserved tokens.
var ErrInvalidInstruction = errors.New("invalid instruction")

// Instruction is a validated sequence of token ids. A valid Instruction
// starts with BOS, ends with EOS, and holds at least one other token.
type Instruction struct {
	tokens []int
}

// New validates ids against a vocabulary of vocabSize tokens and
// returns the resulting Instruction. The ids are copied.
func New(ids []int, vocabSize int) (Instruction, error) {
	if err := Validate(ids, vocabSize); err != nil {
		return Instruction{}, err
	}
	return Instruction{tokens: append([]int(nil), ids...)}, nil
}

// FromWords builds an Instruction from word ids by adding the start
// and end tokens.
func FromWords(words []int, vocabSize int) (Instruction, error) {
	ids := make([]int, 0, len(words)+2)
	ids = append(ids, BOS)
	ids = append(ids, words...)
	ids = append(ids, EOS)
	return New(ids, vocabSize)
}

// Validate returns an error wrapping ErrInvalidInstruction if ids is
// not a valid Instruction for a vocabulary of vocabSize tokens.
func Validate(ids []int, vocabSize int) error {
	if len(ids) < 3 {
		return errors.Wrapf(ErrInvalidInstruction, "empty sequence of "+
			"length %v", len(ids))
	}
	if ids[0] != BOS {
		return errors.Wrap(ErrInvalidInstruction, "missing start token")
	}
	if ids[len(ids)-1] != EOS {
		return errors.Wrap(ErrInvalidInstruction, "missing end token")
	}
	for i, id := range ids[1 : len(ids)-1] {
		if id < 0 || id >= vocabSize {
			return errors.Wrapf(ErrInvalidInstruction, "token %v at "+
				"position %v out of vocabulary of size %v", id, i+1,
				vocabSize)
		}
		if id == PAD || id == BOS || id == EOS {
			return errors.Wrapf(ErrInvalidInstruction, "reserved token %v "+
				"at position %v", id, i+1)
		}
	}
	return nil
}

// Valid returns whether the Instruction was constructed through New
func (i Instruction) Valid() bool {
	return len(i.tokens) >= 3
}

// Len returns the number of tokens in the Instruction, including the
// start and end tokens.
func (i Instruction) Len() int {
	return len(i.tokens)
}

// Tokens returns a copy of the token ids
func (i Instruction) Tokens() []int {
	return append([]int(nil), i.tokens...)
}

// At returns the token id at position ix
func (i Instruction) At(ix int) int {
	return i.tokens[ix]
}

// Words returns the token ids between the start and end tokens
func (i Instruction) Words() []int {
	if len(i.tokens) < 2 {
		return nil
	}
	return append([]int(nil), i.tokens[1:len(i.tokens)-1]...)
}

// Padded returns the token ids padded with PAD to length n, together
// with the number of valid tokens. Instructions longer than n are
// truncated, keeping the end token.
func (i Instruction) Padded(n int) ([]int, int) {
	out := make([]int, n)
	length := len(i.tokens)
	if length > n {
		length = n
		copy(out, i.tokens[:n-1])
		out[n-1] = EOS
		return out, length
	}
	copy(out, i.tokens)
	return out, length
}

// Equal returns whether two Instructions hold the same tokens
func (i Instruction) Equal(other Instruction) bool {
	if len(i.tokens) != len(other.tokens) {
		return false
	}
	for k := range i.tokens {
		if i.tokens[k] != other.tokens[k] {
			return false
		}
	}
	return true
}

// GobEncode implements the gob.GobEncoder interface
func (i Instruction) GobEncode() ([]byte, error) {
	out := make([]byte, 0, 4*len(i.tokens))
	for _, t := range i.tokens {
		out = append(out, byte(t>>24), byte(t>>16), byte(t>>8), byte(t))
	}
	return out, nil
}

// GobDecode implements the gob.GobDecoder interface
func (i *Instruction) GobDecode(in []byte) error {
	if len(in)%4 != 0 {
		return errors.New("gobDecode: malformed instruction encoding")
	}
	i.tokens = make([]int, len(in)/4)
	for k := range i.tokens {
		b := in[4*k : 4*k+4]
		i.tokens[k] = int(int32(uint32(b[0])<<24 | uint32(b[1])<<16 |
			uint32(b[2])<<8 | uint32(b[3])))
	}
	return nil
}
