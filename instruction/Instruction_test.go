package instruction

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/pkg/errors"
)

func TestSplit(t *testing.T) {
	have := Split("Walk past the Table, then stop.")
	want := []string{"walk", "past", "the", "table", ",", "then", "stop", "."}
	if len(have) != len(want) {
		t.Fatalf("split: want(%v) have(%v)", want, have)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf("split: want(%v) have(%v)", want, have)
		}
	}
}

func TestBuildVocab(t *testing.T) {
	v := BuildVocab([]string{"go left", "go right", "go go"}, 2)
	if v.Len() != 5 {
		t.Fatalf("vocab size: want(5) have(%v)", v.Len())
	}
	if v.ID("go") != 4 {
		t.Errorf("id of go: want(4) have(%v)", v.ID("go"))
	}
	if v.ID("left") != UNK {
		t.Errorf("rare words should map to UNK")
	}

	var buf bytes.Buffer
	if err := v.Save(&buf); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadVocab(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != v.Len() || loaded.ID("go") != v.ID("go") {
		t.Errorf("vocab did not survive save/load")
	}
}

func TestEncodeDecode(t *testing.T) {
	v := NewVocab([]string{"turn", "left", "stop"})
	tok := NewTokenizer(v, 5)

	instr, err := tok.Encode("Turn left and stop")
	if err != nil {
		t.Fatal(err)
	}
	// Truncated to 3 words plus start and end tokens
	if instr.Len() != 5 {
		t.Errorf("length: want(5) have(%v)", instr.Len())
	}
	if instr.At(0) != BOS || instr.At(4) != EOS || instr.At(3) != UNK {
		t.Errorf("unexpected tokens %v", instr.Tokens())
	}
	if s := tok.Decode(instr); s != "turn left <UNK>" {
		t.Errorf("decode: have(%q)", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		ok   bool
	}{
		{"valid", []int{BOS, 5, EOS}, true},
		{"empty", []int{BOS, EOS}, false},
		{"noStart", []int{5, 5, EOS}, false},
		{"noEnd", []int{BOS, 5, 5}, false},
		{"outOfVocab", []int{BOS, 10, EOS}, false},
		{"negative", []int{BOS, -1, EOS}, false},
		{"innerPad", []int{BOS, 5, PAD, 6, EOS}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(test.ids, 10)
			if test.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !test.ok && !errors.Is(err, ErrInvalidInstruction) {
				t.Errorf("expected invalid instruction, have(%v)", err)
			}
		})
	}
}

func TestPadded(t *testing.T) {
	instr, err := New([]int{BOS, 4, 5, 6, EOS}, 10)
	if err != nil {
		t.Fatal(err)
	}

	ids, n := instr.Padded(8)
	if n != 5 || ids[5] != PAD || ids[4] != EOS {
		t.Errorf("padded: have(%v, %v)", ids, n)
	}

	ids, n = instr.Padded(3)
	if n != 3 || ids[2] != EOS || ids[1] != 4 {
		t.Errorf("truncated: have(%v, %v)", ids, n)
	}
}

func TestInstructionGob(t *testing.T) {
	instr, err := New([]int{BOS, 4, 300000, EOS}, 400000)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(instr); err != nil {
		t.Fatal(err)
	}
	var out Instruction
	if err := gob.NewDecoder(&buf).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Equal(instr) {
		t.Errorf("gob: want(%v) have(%v)", instr.Tokens(), out.Tokens())
	}
}
