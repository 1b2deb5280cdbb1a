// Package dataset implements the dataset of human-annotated
// instruction and path pairs used to train navigation agents
package dataset

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/vlnav/environment"
	"github.com/samuelfneumann/vlnav/instruction"
	"golang.org/x/exp/rand"
)

// ErrMalformedPath is returned for ground-truth paths that leave the
// navigation graph
var ErrMalformedPath = errors.New("malformed path")

// Entry is a single annotated path in the R2R JSON format. Each path
// is described by several instructions.
type Entry struct {
	PathID       int      `json:"path_id"`
	Scan         string   `json:"scan"`
	Path         []string `json:"path"`
	Heading      float64  `json:"heading"`
	Distance     float64  `json:"distance"`
	Instructions []string `json:"instructions"`
}

// ReadJSON reads a list of Entries in the R2R JSON format
func ReadJSON(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "readJSON")
	}
	return entries, nil
}

// Sentences returns every instruction of every entry, for building
// vocabularies
func Sentences(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Instructions...)
	}
	return out
}

// Item is a single instruction paired with the path it describes
type Item struct {
	ID          string
	Scan        string
	Path        []string
	Heading     float64
	Text        string
	Instruction instruction.Instruction
}

// Spec returns the episode of following the Item's path
func (i Item) Spec() environment.EpisodeSpec {
	return environment.EpisodeSpec{
		ID:      i.ID,
		Scan:    i.Scan,
		Start:   i.Path[0],
		Goal:    i.Path[len(i.Path)-1],
		Heading: i.Heading,
	}
}

// Items tokenizes the instructions of the entries into Items, one
// per instruction. Entries without a path and instructions that do
// not tokenize are dropped, and their errors returned.
func Items(entries []Entry, tok *instruction.Tokenizer) ([]Item, []error) {
	var items []Item
	var errs []error
	for _, e := range entries {
		if len(e.Path) == 0 {
			errs = append(errs, errors.Wrapf(ErrMalformedPath,
				"path %v is empty", e.PathID))
			continue
		}
		for j, text := range e.Instructions {
			id := fmt.Sprintf("%d_%d", e.PathID, j)
			instr, err := tok.Encode(text)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "item %v", id))
				continue
			}
			items = append(items, Item{
				ID:          id,
				Scan:        e.Scan,
				Path:        append([]string(nil), e.Path...),
				Heading:     e.Heading,
				Text:        text,
				Instruction: instr,
			})
		}
	}
	return items, errs
}

// Dataset cycles through a list of Items in a seeded random order,
// reshuffling at the start of every epoch
type Dataset struct {
	items []Item
	order []int
	pos   int
	epoch int

	src *rand.PCGSource
	rng *rand.Rand
}

// New returns a new Dataset over items, shuffled with the given seed
func New(items []Item, seed uint64) (*Dataset, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("new: no items")
	}
	src := &rand.PCGSource{}
	src.Seed(seed)

	d := &Dataset{
		items: items,
		order: make([]int, len(items)),
		src:   src,
		rng:   rand.New(src),
	}
	d.shuffle()
	return d, nil
}

func (d *Dataset) shuffle() {
	for i := range d.order {
		d.order[i] = i
	}
	d.rng.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
	d.pos = 0
}

// Len returns the number of Items in the Dataset
func (d *Dataset) Len() int {
	return len(d.items)
}

// Items returns all Items in their original order
func (d *Dataset) Items() []Item {
	return d.items
}

// Epoch returns the number of completed passes over the Dataset
func (d *Dataset) Epoch() int {
	return d.epoch
}

// Next returns the next n Items, starting a new epoch whenever the
// current one is exhausted
func (d *Dataset) Next(n int) []Item {
	out := make([]Item, 0, n)
	for len(out) < n {
		if d.pos == len(d.order) {
			d.epoch++
			d.shuffle()
		}
		out = append(out, d.items[d.order[d.pos]])
		d.pos++
	}
	return out
}

// position is the serialized iteration state of a Dataset
type position struct {
	Order []int
	Pos   int
	Epoch int
	Src   []byte
}

// MarshalBinary implements the encoding.BinaryMarshaler interface. Only
// the iteration state is marshalled, not the Items.
func (d *Dataset) MarshalBinary() ([]byte, error) {
	src, err := d.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshalBinary: %v", err)
	}
	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(position{
		Order: d.order,
		Pos:   d.pos,
		Epoch: d.epoch,
		Src:   src,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalBinary: %v", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
// The Dataset must hold the same Items as the one that was marshalled.
func (d *Dataset) UnmarshalBinary(data []byte) error {
	var p position
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return fmt.Errorf("unmarshalBinary: %v", err)
	}
	if len(p.Order) != len(d.items) {
		return fmt.Errorf("unmarshalBinary: state of %v items for dataset "+
			"of %v items", len(p.Order), len(d.items))
	}
	if err := d.src.UnmarshalBinary(p.Src); err != nil {
		return fmt.Errorf("unmarshalBinary: %v", err)
	}
	d.order = p.Order
	d.pos = p.Pos
	d.epoch = p.Epoch
	return nil
}
