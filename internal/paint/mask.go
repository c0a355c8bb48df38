package paint

import (
	"fmt"
	"math"
)

// Mask marks the pixels that belong to a selected region. Bits are stored
// row-major with Width*Height entries.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an empty mask.
func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// NewFullMask allocates a mask covering every pixel.
func NewFullMask(width, height int) Mask {
	m := NewMask(width, height)
	for i := range m.Bits {
		m.Bits[i] = true
	}
	return m
}

// MaskFromRows builds a mask from rows of booleans; all rows must have the same length.
func MaskFromRows(rows [][]bool) (Mask, error) {
	if len(rows) == 0 {
		return Mask{}, nil
	}
	width := len(rows[0])
	m := NewMask(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return Mask{}, fmt.Errorf("mask row %d has %d columns, expected %d", y, len(row), width)
		}
		copy(m.Bits[y*width:(y+1)*width], row)
	}
	return m, nil
}

func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

func (m Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Bits[y*m.Width+x] = v
}

// Count returns the number of covered pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Validate checks that the mask is consistent and matches the given size.
func (m Mask) Validate(width, height int) error {
	if m.Width != width || m.Height != height {
		return fmt.Errorf("mask size %dx%d does not match image size %dx%d", m.Width, m.Height, width, height)
	}
	if len(m.Bits) != width*height {
		return fmt.Errorf("mask has %d entries, expected %d", len(m.Bits), width*height)
	}
	return nil
}

// Candidate is one mask proposed by the segmentation collaborator together
// with its confidence score in [0,1].
type Candidate struct {
	Mask  Mask
	Score float64
}

// SelectBest returns the candidate with the strictly highest score. Ties are
// resolved in favour of the earliest candidate. NaN scores never win over a
// real score.
func SelectBest(candidates []Candidate) (Candidate, error) {
	idx, err := BestIndex(candidates)
	if err != nil {
		return Candidate{}, err
	}
	return candidates[idx], nil
}

// BestIndex is SelectBest returning the position of the winner.
func BestIndex(candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return -1, ErrNoMasksAvailable
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		score := candidates[i].Score
		if math.IsNaN(score) {
			continue
		}
		if math.IsNaN(candidates[best].Score) || score > candidates[best].Score {
			best = i
		}
	}
	return best, nil
}
