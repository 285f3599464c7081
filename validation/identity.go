package validation

import (
	"bytes"
	"io"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrAlignment = errors.New("alignment must hold two sequences of equal length")

// Identity counts the columns of a pairwise alignment by kind. Every column
// is counted once: identical, else ambiguous when either base is N, else a
// gap when either is '-', else other.
type Identity struct {
	Length    int
	Identical int
	Ambiguous int
	Gap       int
	Other     int
}

// Percent is the share of identical columns.
func (id Identity) Percent() float64 {
	if id.Length == 0 {
		return 0
	}
	return 100 * float64(id.Identical) / float64(id.Length)
}

// Compare classifies the columns of two aligned sequences.
func Compare(a, b []byte) (Identity, error) {
	if len(a) != len(b) {
		return Identity{}, errors.Wrapf(ErrAlignment, "lengths %d and %d", len(a), len(b))
	}
	id := Identity{Length: len(a)}
	for i := range a {
		switch {
		case a[i] == b[i]:
			id.Identical++
		case a[i] == 'N' || b[i] == 'N':
			id.Ambiguous++
		case a[i] == '-' || b[i] == '-':
			id.Gap++
		default:
			id.Other++
		}
	}
	return id, nil
}

// ConsensusIdentity reads a two sequence FASTA alignment and compares the
// sequences case insensitively.
func ConsensusIdentity(in io.Reader) (Identity, error) {
	sc := seqio.NewScanner(fasta.NewReader(in, linear.NewSeq("", nil, alphabet.DNAgapped)))
	var seqs [][]byte
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		b := make([]byte, len(s.Seq))
		for i, l := range s.Seq {
			b[i] = byte(l)
		}
		seqs = append(seqs, bytes.ToUpper(b))
	}
	if err := sc.Error(); err != nil {
		return Identity{}, errors.Wrap(err, "reading alignment")
	}
	if len(seqs) != 2 {
		return Identity{}, errors.Wrapf(ErrAlignment, "found %d sequences", len(seqs))
	}
	return Compare(seqs[0], seqs[1])
}

type Summary struct {
	Samples     int
	Mean        float64
	StdDev      float64
	Min         float64
	TotalLength int
}

// Summarize describes the identity percentages of a set of results.
func Summarize(results []Result) Summary {
	if len(results) == 0 {
		return Summary{}
	}
	pcts := make([]float64, len(results))
	s := Summary{Samples: len(results)}
	for i, r := range results {
		pcts[i] = r.Identity.Percent()
		s.TotalLength += r.Identity.Length
	}
	s.Mean, s.StdDev = stat.MeanStdDev(pcts, nil)
	if len(pcts) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(pcts)
	return s
}
