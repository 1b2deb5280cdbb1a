package policy

import (
	"fmt"

	"github.com/samuelfneumann/vlnav/network"
	"github.com/samuelfneumann/vlnav/utils/op"
	G "gorgonia.org/gorgonia"
)

// Decoder is the recurrent action decoder. At every step it embeds the
// previous action, attends over the panorama, updates its recurrent
// state, attends over the instruction, and scores every candidate and
// the stop action.
//
// If the schema has landmark features, every candidate is also scored
// by the similarity of its landmark features to the attended
// instruction, and the two scores are fused by a learned linear map.
type Decoder struct {
	actionEmbed *network.Linear
	panoAttn    *network.Attention
	lstm        *network.LSTMCell
	instrAttn   *network.Attention
	candAttn    *network.Attention
	stop        string

	landmark     string // landmark x hidden similarity matrix
	landmarkStop string // landmark score of the stop action
	fuse         *network.Linear

	featureDim  int
	angleDim    int
	landmarkDim int
	hidden      int
}

func newDecoder(p *network.Params, c Config, init G.InitWFn) (*Decoder,
	error) {
	d := &Decoder{
		stop:       "decoder.stop",
		featureDim:  c.FeatureDim(),
		angleDim:    c.Schema.Angle,
		landmarkDim: c.Schema.Landmark,
		hidden:      c.Hidden,
	}

	var err error
	d.actionEmbed, err = network.NewLinear(p, "decoder.action", c.Schema.Angle,
		c.ActionEmbedding, true, network.TanH(), init)
	if err != nil {
		return nil, err
	}
	d.panoAttn, err = network.NewAttention(p, "decoder.panorama", c.Hidden,
		d.featureDim, 0, init)
	if err != nil {
		return nil, err
	}
	d.lstm, err = network.NewLSTMCell(p, "decoder.lstm",
		c.ActionEmbedding+d.featureDim, c.Hidden, init)
	if err != nil {
		return nil, err
	}
	d.instrAttn, err = network.NewAttention(p, "decoder.instruction",
		c.Hidden, c.Hidden, c.Hidden, init)
	if err != nil {
		return nil, err
	}
	d.candAttn, err = network.NewAttention(p, "decoder.candidates", c.Hidden,
		d.featureDim, 0, init)
	if err != nil {
		return nil, err
	}
	if _, err := p.Add(d.stop, init, d.featureDim); err != nil {
		return nil, err
	}

	if d.landmarkDim > 0 {
		d.landmark = "decoder.landmark"
		d.landmarkStop = "decoder.landmark.stop"
		if _, err := p.Add(d.landmark, init, d.landmarkDim, c.Hidden); err != nil {
			return nil, err
		}
		if _, err := p.Add(d.landmarkStop, init, 1); err != nil {
			return nil, err
		}
		d.fuse, err = network.NewLinear(p, "decoder.fuse", 2, 1, true, nil,
			init)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

// StepInput holds the observation-dependent inputs of a decoder step
type StepInput struct {
	PrevAction *G.Node // Angle encoding of the previous action
	Panorama   *G.Node // One row per view
	Candidates *G.Node // One row per candidate, nil if there are none

	// Landmarks holds the landmark features of each candidate, one row
	// per candidate. It is nil if there are no candidates or the schema
	// has no landmark features.
	Landmarks *G.Node

	// Blocked masks actions, including stop, nil if none are blocked
	Blocked *G.Node
}

// StepOutput holds the nodes computed by a decoder step
type StepOutput struct {
	H, C     *G.Node // Next recurrent state
	HTilde   *G.Node // Instruction-attended state
	Logits   *G.Node // One score per candidate, followed by stop
	LogProbs *G.Node
}

// Fwd adds a single decoding step from recurrent state (h, c) to the
// graph
func (d *Decoder) Fwd(b *network.Bound, in StepInput, enc *Encoding, h,
	c *G.Node) (*StepOutput, error) {
	action, err := d.actionEmbed.Fwd(b, in.PrevAction)
	if err != nil {
		return nil, fmt.Errorf("decode: action embedding: %v", err)
	}

	pano, err := d.panoAttn.Fwd(b, h, in.Panorama, nil)
	if err != nil {
		return nil, fmt.Errorf("decode: panorama attention: %v", err)
	}

	x, err := G.Concat(0, action, pano.Output)
	if err != nil {
		return nil, fmt.Errorf("decode: %v", err)
	}
	nextH, nextC, err := d.lstm.Fwd(b, x, h, c)
	if err != nil {
		return nil, fmt.Errorf("decode: %v", err)
	}

	instr, err := d.instrAttn.Fwd(b, nextH, enc.Context, enc.Mask)
	if err != nil {
		return nil, fmt.Errorf("decode: instruction attention: %v", err)
	}

	// The stop action is scored as a learned candidate following the
	// real candidates
	stop, err := network.Rows(b.Node(d.stop))
	if err != nil {
		return nil, fmt.Errorf("decode: %v", err)
	}
	cands := stop
	if in.Candidates != nil {
		cands, err = G.Concat(0, in.Candidates, stop)
		if err != nil {
			return nil, fmt.Errorf("decode: %v", err)
		}
	}

	logits, err := d.candAttn.Scores(b, instr.Output, cands, nil)
	if err != nil {
		return nil, fmt.Errorf("decode: candidate scores: %v", err)
	}
	if d.fuse != nil {
		logits, err = d.fuseLandmarks(b, in.Landmarks, instr.Output, logits)
		if err != nil {
			return nil, fmt.Errorf("decode: landmark scores: %v", err)
		}
	}
	if in.Blocked != nil {
		logits, err = G.Add(logits, in.Blocked)
		if err != nil {
			return nil, fmt.Errorf("decode: %v", err)
		}
	}

	return &StepOutput{
		H:        nextH,
		C:        nextC,
		HTilde:   instr.Output,
		Logits:   logits,
		LogProbs: op.LogSoftmax(logits),
	}, nil
}

// fuseLandmarks scores the landmarks of every candidate against the
// instruction-attended state htilde and fuses these scores with the
// candidate attention logits, one output per candidate and stop
func (d *Decoder) fuseLandmarks(b *network.Bound, landmarks, htilde,
	logits *G.Node) (*G.Node, error) {
	scores := b.Node(d.landmarkStop)
	if landmarks != nil {
		if !landmarks.IsMatrix() || landmarks.Shape()[1] != d.landmarkDim {
			return nil, fmt.Errorf("landmarks must be a matrix with %v "+
				"columns, have shape %v", d.landmarkDim, landmarks.Shape())
		}
		target, err := G.Mul(b.Node(d.landmark), htilde)
		if err != nil {
			return nil, err
		}
		cands, err := G.Mul(landmarks, target)
		if err != nil {
			return nil, err
		}
		if scores, err = G.Concat(0, cands, scores); err != nil {
			return nil, err
		}
	}

	n := logits.Shape().TotalSize()
	if scores.Shape().TotalSize() != n {
		return nil, fmt.Errorf("%v landmark scores for %v actions",
			scores.Shape().TotalSize(), n)
	}
	pairs, err := G.Concat(1,
		G.Must(G.Reshape(scores, []int{n, 1})),
		G.Must(G.Reshape(logits, []int{n, 1})))
	if err != nil {
		return nil, err
	}
	fused, err := d.fuse.Fwd(b, pairs)
	if err != nil {
		return nil, err
	}
	return G.Reshape(fused, []int{n})
}
