package rios

import (
	"fmt"
	"math"
)

// alignmentTolerance is the fraction of a pixel by which two grid origins may
// differ and still be considered aligned.
const alignmentTolerance = 1e-6

// A PixelGrid is a north-up georeferenced grid of pixels. XMin and YMax are
// the coordinates of the top-left corner of the top-left pixel. XRes and YRes
// are both positive; rows run south from YMax.
type PixelGrid struct {
	XMin       float64
	YMax       float64
	XRes       float64
	YRes       float64
	NCols      int
	NRows      int
	Projection string
}

// NewPixelGridFromGeoTransform returns a new PixelGrid from a GDAL-style
// geotransform.
func NewPixelGridFromGeoTransform(geoTransform [6]float64, ncols, nrows int, projection string) (*PixelGrid, error) {
	if geoTransform[2] != 0 || geoTransform[4] != 0 || geoTransform[5] >= 0 || geoTransform[1] <= 0 {
		return nil, fmt.Errorf("%v: %w", geoTransform, ErrGridMismatch)
	}
	return &PixelGrid{
		XMin:       geoTransform[0],
		YMax:       geoTransform[3],
		XRes:       geoTransform[1],
		YRes:       -geoTransform[5],
		NCols:      ncols,
		NRows:      nrows,
		Projection: projection,
	}, nil
}

// XMax returns the x coordinate of g's right edge.
func (g *PixelGrid) XMax() float64 {
	return g.XMin + float64(g.NCols)*g.XRes
}

// YMin returns the y coordinate of g's bottom edge.
func (g *PixelGrid) YMin() float64 {
	return g.YMax - float64(g.NRows)*g.YRes
}

// GeoTransform returns g as a GDAL-style geotransform.
func (g *PixelGrid) GeoTransform() [6]float64 {
	return [6]float64{g.XMin, g.XRes, 0, g.YMax, 0, -g.YRes}
}

// PixCoord returns the coordinate of the top-left corner of the pixel at col,
// row. col and row may lie outside g.
func (g *PixelGrid) PixCoord(col, row int) (float64, float64) {
	return g.XMin + float64(col)*g.XRes, g.YMax - float64(row)*g.YRes
}

// PixRowCol returns the column and row of the pixel containing x, y.
func (g *PixelGrid) PixRowCol(x, y float64) (int, int) {
	col := int(math.Floor((x - g.XMin) / g.XRes))
	row := int(math.Floor((g.YMax - y) / g.YRes))
	return col, row
}

func (g *PixelGrid) EqualPixSize(other *PixelGrid) bool {
	return g.XRes == other.XRes && g.YRes == other.YRes
}

func (g *PixelGrid) EqualProjection(other *PixelGrid) bool {
	return g.Projection == other.Projection
}

// AlignedWith returns true if the pixels of g and other share edges, i.e.
// their origins differ by a whole number of pixels.
func (g *PixelGrid) AlignedWith(other *PixelGrid) bool {
	if !g.EqualPixSize(other) {
		return false
	}
	dx := (other.XMin - g.XMin) / g.XRes
	dy := (g.YMax - other.YMax) / g.YRes
	return math.Abs(dx-math.Round(dx)) < alignmentTolerance && math.Abs(dy-math.Round(dy)) < alignmentTolerance
}

// Offset returns the column and row in g of the top-left pixel of other. g and
// other must be aligned.
func (g *PixelGrid) Offset(other *PixelGrid) (int, int) {
	col := int(math.Round((other.XMin - g.XMin) / g.XRes))
	row := int(math.Round((g.YMax - other.YMax) / g.YRes))
	return col, row
}

// Intersection returns the grid covering the area common to g and other, on
// g's pixel grid.
func (g *PixelGrid) Intersection(other *PixelGrid) (*PixelGrid, error) {
	if !g.AlignedWith(other) {
		return nil, ErrGridMismatch
	}
	col0, row0 := g.Offset(other)
	minCol := max(0, col0)
	minRow := max(0, row0)
	maxCol := min(g.NCols, col0+other.NCols)
	maxRow := min(g.NRows, row0+other.NRows)
	if maxCol <= minCol || maxRow <= minRow {
		return nil, ErrNoIntersection
	}
	return g.subGrid(minCol, minRow, maxCol-minCol, maxRow-minRow), nil
}

// Union returns the grid covering the area of both g and other, on g's pixel
// grid.
func (g *PixelGrid) Union(other *PixelGrid) (*PixelGrid, error) {
	if !g.AlignedWith(other) {
		return nil, ErrGridMismatch
	}
	col0, row0 := g.Offset(other)
	minCol := min(0, col0)
	minRow := min(0, row0)
	maxCol := max(g.NCols, col0+other.NCols)
	maxRow := max(g.NRows, row0+other.NRows)
	return g.subGrid(minCol, minRow, maxCol-minCol, maxRow-minRow), nil
}

// subGrid returns the grid starting at col, row of g with the given size.
func (g *PixelGrid) subGrid(col, row, ncols, nrows int) *PixelGrid {
	xMin, yMax := g.PixCoord(col, row)
	return &PixelGrid{
		XMin:       xMin,
		YMax:       yMax,
		XRes:       g.XRes,
		YRes:       g.YRes,
		NCols:      ncols,
		NRows:      nrows,
		Projection: g.Projection,
	}
}

func (g *PixelGrid) String() string {
	return fmt.Sprintf("%s %dx%d at (%g, %g) res (%g, %g)", g.Projection, g.NCols, g.NRows, g.XMin, g.YMax, g.XRes, g.YRes)
}

// FindCommonRegion returns the working grid of grids combined according to
// footprint, aligned with reference.
func FindCommonRegion(grids []*PixelGrid, reference *PixelGrid, footprint Footprint) (*PixelGrid, error) {
	switch footprint {
	case BoundsFromReference:
		return reference.subGrid(0, 0, reference.NCols, reference.NRows), nil
	case Intersection, Union:
	default:
		return nil, fmt.Errorf("%d: %w", footprint, errUnknownFootprint)
	}
	region := reference.subGrid(0, 0, reference.NCols, reference.NRows)
	for _, grid := range grids {
		var err error
		if footprint == Intersection {
			region, err = region.Intersection(grid)
		} else {
			region, err = region.Union(grid)
		}
		if err != nil {
			return nil, err
		}
	}
	return region, nil
}
