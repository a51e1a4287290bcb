package rios

import (
	"github.com/twpayne/go-proj/v10"
)

// A ReaderInfo describes the block currently being processed by Apply. All
// pixel positions are relative to the top-left pixel of the block including
// its overlap margin.
type ReaderInfo struct {
	workingGrid  *PixelGrid
	inputs       *InputCollection
	controls     *Controls
	xBlock       int
	yBlock       int
	xTotalBlocks int
	yTotalBlocks int
	col          int // Column of the block's top-left pixel in the working grid.
	row          int // Row of the block's top-left pixel in the working grid.
	cols         int
	rows         int
}

// WorkingGrid returns the pixel grid of the whole area being processed.
func (i *ReaderInfo) WorkingGrid() *PixelGrid {
	return i.workingGrid
}

// TotalSize returns the number of columns and rows of the working grid.
func (i *ReaderInfo) TotalSize() (int, int) {
	return i.workingGrid.NCols, i.workingGrid.NRows
}

// BlockSize returns the number of columns and rows of the current block,
// including the overlap margin.
func (i *ReaderInfo) BlockSize() (int, int) {
	return i.cols, i.rows
}

// BlockCount returns the number of blocks across and down.
func (i *ReaderInfo) BlockCount() (int, int) {
	return i.xTotalBlocks, i.yTotalBlocks
}

// BlockIndex returns the column and row of the current block.
func (i *ReaderInfo) BlockIndex() (int, int) {
	return i.xBlock, i.yBlock
}

// OverlapSize returns the overlap margin in pixels.
func (i *ReaderInfo) OverlapSize() int {
	return i.controls.Overlap
}

func (i *ReaderInfo) IsFirstBlock() bool {
	return i.xBlock == 0 && i.yBlock == 0
}

func (i *ReaderInfo) IsLastBlock() bool {
	return i.xBlock == i.xTotalBlocks-1 && i.yBlock == i.yTotalBlocks-1
}

// Projection returns the projection of the working grid.
func (i *ReaderInfo) Projection() string {
	return i.workingGrid.Projection
}

// Transform returns the GDAL-style geotransform of the current block.
func (i *ReaderInfo) Transform() [6]float64 {
	x, y := i.PixCoord(0, 0)
	return [6]float64{x, i.workingGrid.XRes, 0, y, 0, -i.workingGrid.YRes}
}

// PixCoord returns the coordinate of the top-left corner of the pixel at x, y
// in the current block.
func (i *ReaderInfo) PixCoord(x, y int) (float64, float64) {
	return i.workingGrid.PixCoord(i.col+x, i.row+y)
}

// PixRowColBlock returns the position in the current block of the pixel
// containing the coordinate x, y. The position may lie outside the block.
func (i *ReaderInfo) PixRowColBlock(x, y float64) (int, int) {
	col, row := i.workingGrid.PixRowCol(x, y)
	return col - i.col, row - i.row
}

// BlockCoordArrays returns the coordinates of the centres of every pixel in
// the current block, indexed by row then column.
func (i *ReaderInfo) BlockCoordArrays() ([][]float64, [][]float64) {
	xs := make([][]float64, i.rows)
	ys := make([][]float64, i.rows)
	for r := range i.rows {
		xs[r] = make([]float64, i.cols)
		ys[r] = make([]float64, i.cols)
		y := i.workingGrid.YMax - (float64(i.row+r)+0.5)*i.workingGrid.YRes
		for c := range i.cols {
			xs[r][c] = i.workingGrid.XMin + (float64(i.col+c)+0.5)*i.workingGrid.XRes
			ys[r][c] = y
		}
	}
	return xs, ys
}

// TransformBlockCoords returns the centres of every pixel in the current
// block transformed to targetCRS. Axis order follows the CRS definitions, so
// EPSG:4326 coordinates are latitude, longitude.
func (i *ReaderInfo) TransformBlockCoords(targetCRS string) ([][]float64, [][]float64, error) {
	pj, err := proj.NewCRSToCRS(i.workingGrid.Projection, targetCRS, nil)
	if err != nil {
		return nil, nil, err
	}
	xs, ys := i.BlockCoordArrays()
	coords := make([][]float64, 0, i.rows*i.cols)
	for r := range i.rows {
		for c := range i.cols {
			coords = append(coords, []float64{xs[r][c], ys[r][c]})
		}
	}
	if err := pj.ForwardFloat64Slices(coords); err != nil {
		return nil, nil, err
	}
	for r := range i.rows {
		for c := range i.cols {
			coord := coords[r*i.cols+c]
			xs[r][c], ys[r][c] = coord[0], coord[1]
		}
	}
	return xs, ys, nil
}

// Filenames returns the filenames of the inputs associated with name.
func (i *ReaderInfo) Filenames(name string) []string {
	return i.inputs.Filenames(name)
}

// NoData returns the no data value of the index'th input associated with
// name.
func (i *ReaderInfo) NoData(name string, index int) (float32, bool) {
	return i.inputs.NoData(name, index)
}
