package riostest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/twpayne/go-rios"
)

const TestCoordsName = "TESTCOORDS"

// Geometry of the coordinate tests. The expected coordinates must be updated
// if the geometry of GenRampImageFile changes.
const (
	xStart         = float64(DefaultXLeft)
	yStart         = float64(DefaultYTop)
	pix            = float64(DefaultPixSize)
	step           = pix * rios.DefaultWindowXSize
	halfPix        = 0.5 * pix
	olap           = 2
	margin         = olap * pix
	offset2ndImage = 100 * pix
)

// A Coord2 is a map coordinate.
type Coord2 struct {
	X float64
	Y float64
}

func (c Coord2) String() string {
	return fmt.Sprintf("(%v, %v)", c.X, c.Y)
}

// A coordsAccumulator accumulates the coordinates of every block.
type coordsAccumulator struct {
	corners []Coord2
	centres []Coord2
}

// expectedCoords returns the expected top-left corner and top-left pixel
// centre of every block of an n by n grid of blocks whose first block's
// top-left corner is at x0, y0.
func expectedCoords(n int, x0, y0 float64) ([]Coord2, []Coord2) {
	corners := make([]Coord2, 0, n*n)
	centres := make([]Coord2, 0, n*n)
	for i := range n {
		for j := range n {
			corners = append(corners, Coord2{
				X: x0 + float64(j)*step,
				Y: y0 - float64(i)*step,
			})
			centres = append(centres, Coord2{
				X: x0 + float64(j)*step + halfPix,
				Y: y0 - float64(i)*step - halfPix,
			})
		}
	}
	return corners, centres
}

// ExpectedCoords1FileNoOverlap returns the expected corners and centres of a
// single ramp file with no overlap.
func ExpectedCoords1FileNoOverlap() ([]Coord2, []Coord2) {
	return expectedCoords(3, xStart, yStart)
}

// ExpectedCoords1FileOverlap2 returns the expected corners and centres of a
// single ramp file with an overlap of two pixels.
func ExpectedCoords1FileOverlap2() ([]Coord2, []Coord2) {
	return expectedCoords(3, xStart-margin, yStart+margin)
}

// ExpectedCoords2FileOverlap2 returns the expected corners and centres of two
// ramp files, the second offset by 100 pixels right and down, with an overlap
// of two pixels.
func ExpectedCoords2FileOverlap2() ([]Coord2, []Coord2) {
	return expectedCoords(2, xStart+offset2ndImage-margin, yStart-offset2ndImage+margin)
}

// getCoords records the top-left corner and the centre of the top-left pixel
// of each block.
func getCoords(info *rios.ReaderInfo, inputs, outputs rios.BlockAssociations, acc *coordsAccumulator) error {
	x, y := info.PixCoord(0, 0)
	acc.corners = append(acc.corners, Coord2{X: x, Y: y})

	xs, ys := info.BlockCoordArrays()
	acc.centres = append(acc.centres, Coord2{X: xs[0][0], Y: ys[0][0]})
	return nil
}

// CheckCoordList returns true if actual and expected are exactly equal.
func CheckCoordList(actual, expected []Coord2) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false
		}
	}
	return true
}

// checkCoords checks acc against the expected corners and centres and reports
// any mismatch.
func checkCoords(r *Reporter, testCondition string, acc *coordsAccumulator, corners, centres []Coord2) bool {
	ok := true
	for _, check := range []struct {
		what     string
		actual   []Coord2
		expected []Coord2
	}{
		{what: "Corner", actual: acc.corners, expected: corners},
		{what: "Centre", actual: acc.centres, expected: centres},
	} {
		if CheckCoordList(check.actual, check.expected) {
			continue
		}
		r.Report(TestCoordsName, fmt.Sprintf("%s: %s coordinates mis-match. %v, %v", testCondition, check.what, check.actual, check.expected))
		logger.WithField("diff", cmp.Diff(check.expected, check.actual)).Debug(testCondition)
		ok = false
	}
	return ok
}

// RunCoords checks the coordinates that rios reports for each block, for a
// single file with and without an overlap and for two offset files with an
// overlap. Temporary files are written to dir and removed if all checks pass.
func RunCoords(ctx context.Context, dir string, r *Reporter) bool {
	allOK := true

	r.ReportStart(TestCoordsName)

	ramp1 := filepath.Join(dir, "ramp1.tif")
	ramp2 := filepath.Join(dir, "ramp2.tif")
	if err := GenRampImageFile(ramp1); err != nil {
		r.Report(TestCoordsName, err.Error())
		return false
	}

	// The second file is the same as the first, but shifted 100 pixels right
	// and down.
	if err := GenRampImageFile(ramp2, WithOrigin(DefaultXLeft+offset2ndImage, DefaultYTop-offset2ndImage)); err != nil {
		r.Report(TestCoordsName, err.Error())
		return false
	}

	inputs := rios.FilenameAssociations{}
	controls := rios.NewControls()

	for _, scenario := range []struct {
		testCondition string
		filenames     []string
		overlap       int
		expectedFunc  func() ([]Coord2, []Coord2)
	}{
		{
			testCondition: "1 file, overlap=0",
			filenames:     []string{ramp1},
			expectedFunc:  ExpectedCoords1FileNoOverlap,
		},
		{
			testCondition: "1 file, overlap=2",
			filenames:     []string{ramp1},
			overlap:       olap,
			expectedFunc:  ExpectedCoords1FileOverlap2,
		},
		{
			testCondition: "2 files, overlap=2",
			filenames:     []string{ramp1, ramp2},
			overlap:       olap,
			expectedFunc:  ExpectedCoords2FileOverlap2,
		},
	} {
		inputs.Set("img", scenario.filenames...)
		controls.SetOverlap(scenario.overlap)
		acc := &coordsAccumulator{}
		if err := rios.Apply(ctx, getCoords, inputs, nil, acc, controls); err != nil {
			r.Report(TestCoordsName, fmt.Sprintf("%s: %v", scenario.testCondition, err))
			allOK = false
			continue
		}
		corners, centres := scenario.expectedFunc()
		if !checkCoords(r, scenario.testCondition, acc, corners, centres) {
			allOK = false
		}
		logger.WithFields(logrus.Fields{
			"condition": scenario.testCondition,
			"blocks":    len(acc.corners),
		}).Debug("checked coordinates")
	}

	if allOK {
		for _, filename := range []string{ramp1, ramp2} {
			if err := os.Remove(filename); err != nil {
				r.Report(TestCoordsName, err.Error())
				allOK = false
			}
		}
	}

	return allOK
}
