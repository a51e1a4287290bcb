package rios

import (
	"maps"
	"slices"
)

// A Block is a rectangular array of samples in row-major order.
type Block struct {
	Cols int
	Rows int
	Data []float32
}

// NewBlock returns a new Block of cols by rows samples, all set to value.
func NewBlock(cols, rows int, value float32) *Block {
	b := &Block{
		Cols: cols,
		Rows: rows,
		Data: make([]float32, cols*rows),
	}
	for i := range b.Data {
		b.Data[i] = value
	}
	return b
}

// At returns the sample at col, row.
func (b *Block) At(col, row int) float32 {
	return b.Data[row*b.Cols+col]
}

// Set sets the sample at col, row.
func (b *Block) Set(col, row int, value float32) {
	b.Data[row*b.Cols+col] = value
}

// A FilenameAssociations associates symbolic names with one or more
// filenames.
type FilenameAssociations map[string][]string

// Set associates name with filenames, replacing any existing association.
func (a FilenameAssociations) Set(name string, filenames ...string) {
	a[name] = filenames
}

// Names returns the names in a in sorted order.
func (a FilenameAssociations) Names() []string {
	return slices.Sorted(maps.Keys(a))
}

// A BlockAssociations associates symbolic names with one block per filename
// of the corresponding FilenameAssociations.
type BlockAssociations map[string][]*Block

// Get returns the first block associated with name, or nil if there is none.
func (a BlockAssociations) Get(name string) *Block {
	if blocks := a[name]; len(blocks) > 0 {
		return blocks[0]
	}
	return nil
}

// Set associates name with blocks.
func (a BlockAssociations) Set(name string, blocks ...*Block) {
	a[name] = blocks
}
