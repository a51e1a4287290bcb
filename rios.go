// Package rios applies functions to georeferenced rasters one block at a time.
//
// The inputs of an [Apply] are resolved onto a common working grid, the
// working grid is split into blocks, and each block is read from every input
// and passed to a user function together with a [ReaderInfo] describing the
// block's position on the ground.
package rios

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	ErrGridMismatch     = errors.New("grid mismatch")
	ErrInvalidControls  = errors.New("invalid controls")
	ErrNoInputs         = errors.New("no inputs")
	ErrNoIntersection   = errors.New("inputs do not intersect")
	ErrOutputBlockSize  = errors.New("output block has wrong size")
	ErrMissingOutput    = errors.New("missing output block")
	errShortRead        = errors.New("short read")
	errInvalidWindow    = errors.New("invalid window")
	errUnknownFootprint = errors.New("unknown footprint")
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "rios",
	"component": "rios",
})

// A TileCoord is a tile coordinate.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A Raster is a single band georeferenced raster.
type Raster interface {
	PixelGrid() *PixelGrid
	NoData() (float32, bool)
	ReadWindow(ctx context.Context, col, row, cols, rows int) ([]float32, error)
	Close() error
}
