package rios_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-rios"
)

func writeRamp(t *testing.T, dir, name string, xMin, yMax float64, ncols, nrows int) string {
	t.Helper()
	pixelGrid := &rios.PixelGrid{
		XMin:       xMin,
		YMax:       yMax,
		XRes:       10,
		YRes:       10,
		NCols:      ncols,
		NRows:      nrows,
		Projection: "EPSG:28355",
	}
	data := make([]float32, ncols*nrows)
	for i := range data {
		data[i] = float32(i)
	}
	filename := filepath.Join(dir, name)
	assert.NoError(t, rios.CreateGeoTIFF(filename, pixelGrid, data, rios.WithNoData(-1)))
	return filename
}

type blockRecord struct {
	xBlock, yBlock int
	cols, rows     int
	corner         [2]float64
	first, last    bool
}

func recordBlocks(info *rios.ReaderInfo, inputs, outputs rios.BlockAssociations, records *[]blockRecord) error {
	xBlock, yBlock := info.BlockIndex()
	cols, rows := info.BlockSize()
	x, y := info.PixCoord(0, 0)
	*records = append(*records, blockRecord{
		xBlock: xBlock,
		yBlock: yBlock,
		cols:   cols,
		rows:   rows,
		corner: [2]float64{x, y},
		first:  info.IsFirstBlock(),
		last:   info.IsLastBlock(),
	})
	return nil
}

func TestApply_Blocks(t *testing.T) {
	dir := t.TempDir()
	ramp := writeRamp(t, dir, "ramp.tif", 1000, 2000, 50, 30)

	inputs := rios.FilenameAssociations{}
	inputs.Set("img", ramp)

	var records []blockRecord
	controls := rios.NewControls(rios.WithWindowSize(20, 20), rios.WithOverlap(1))
	assert.NoError(t, rios.Apply(t.Context(), recordBlocks, inputs, nil, &records, controls))
	assert.Equal(t, []blockRecord{
		{xBlock: 0, yBlock: 0, cols: 22, rows: 22, corner: [2]float64{990, 2010}, first: true},
		{xBlock: 1, yBlock: 0, cols: 22, rows: 22, corner: [2]float64{1190, 2010}},
		{xBlock: 2, yBlock: 0, cols: 12, rows: 22, corner: [2]float64{1390, 2010}},
		{xBlock: 0, yBlock: 1, cols: 22, rows: 12, corner: [2]float64{990, 1810}},
		{xBlock: 1, yBlock: 1, cols: 22, rows: 12, corner: [2]float64{1190, 1810}},
		{xBlock: 2, yBlock: 1, cols: 12, rows: 12, corner: [2]float64{1390, 1810}, last: true},
	}, records)
}

func TestApply_ReaderInfo(t *testing.T) {
	dir := t.TempDir()
	ramp := writeRamp(t, dir, "ramp.tif", 1000, 2000, 50, 30)

	inputs := rios.FilenameAssociations{}
	inputs.Set("img", ramp)

	type state struct {
		blocks int
	}
	controls := rios.NewControls(rios.WithWindowSize(16, 16), rios.WithOverlap(2))
	s := &state{}
	assert.NoError(t, rios.Apply(t.Context(), func(info *rios.ReaderInfo, inputs, outputs rios.BlockAssociations, s *state) error {
		s.blocks++

		assert.Equal(t, 2, info.OverlapSize())
		assert.Equal(t, "EPSG:28355", info.Projection())
		assert.Equal(t, []string{ramp}, info.Filenames("img"))
		noData, ok := info.NoData("img", 0)
		assert.True(t, ok)
		assert.Equal(t, float32(-1), noData)
		totalCols, totalRows := info.TotalSize()
		assert.Equal(t, 50, totalCols)
		assert.Equal(t, 30, totalRows)
		xBlocks, yBlocks := info.BlockCount()
		assert.Equal(t, 4, xBlocks)
		assert.Equal(t, 2, yBlocks)

		cols, rows := info.BlockSize()
		block := inputs.Get("img")
		assert.Equal(t, cols, block.Cols)
		assert.Equal(t, rows, block.Rows)

		xs, ys := info.BlockCoordArrays()
		assert.Equal(t, rows, len(xs))
		assert.Equal(t, cols, len(xs[0]))
		transform := info.Transform()
		for r := range rows {
			for c := range cols {
				x, y := info.PixCoord(c, r)
				assert.Equal(t, x+5, xs[r][c])
				assert.Equal(t, y-5, ys[r][c])
				assert.Equal(t, transform[0]+float64(c)*transform[1], x)
				assert.Equal(t, transform[3]+float64(r)*transform[5], y)

				col, row := info.PixRowColBlock(xs[r][c], ys[r][c])
				assert.Equal(t, c, col)
				assert.Equal(t, r, row)

				// Pixels outside the ramp are no data, those inside are
				// the ramp value.
				rampCol, rampRow := int((x-1000)/10), int((2000-y)/10)
				if 0 <= rampCol && rampCol < 50 && 0 <= rampRow && rampRow < 30 && x >= 1000 && y <= 2000 {
					assert.Equal(t, float32(rampRow*50+rampCol), block.At(c, r))
				} else {
					assert.Equal(t, float32(-1), block.At(c, r))
				}
			}
		}
		return nil
	}, inputs, nil, s, controls))
	assert.Equal(t, 8, s.blocks)
}

func TestApply_Output(t *testing.T) {
	dir := t.TempDir()
	ramp := writeRamp(t, dir, "ramp.tif", 1000, 2000, 70, 45)
	output := filepath.Join(dir, "output.tif")

	inputs := rios.FilenameAssociations{}
	inputs.Set("img", ramp)
	outputs := rios.FilenameAssociations{}
	outputs.Set("doubled", output)

	controls := rios.NewControls(rios.WithWindowSize(32, 32), rios.WithOverlap(3))
	assert.NoError(t, rios.Apply(t.Context(), func(info *rios.ReaderInfo, inputs, outputs rios.BlockAssociations, _ struct{}) error {
		in := inputs.Get("img")
		out := rios.NewBlock(in.Cols, in.Rows, 0)
		for i, value := range in.Data {
			out.Data[i] = 2 * value
		}
		outputs.Set("doubled", out)
		return nil
	}, inputs, outputs, struct{}{}, controls))

	raster, err := rios.OpenGeoTIFFRaster(os.DirFS(dir), "output.tif")
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, raster.Close())
	}()
	assert.Equal(t, &rios.PixelGrid{
		XMin:       1000,
		YMax:       2000,
		XRes:       10,
		YRes:       10,
		NCols:      70,
		NRows:      45,
		Projection: "EPSG:28355",
	}, raster.PixelGrid())
	data, err := raster.ReadWindow(t.Context(), 0, 0, 70, 45)
	assert.NoError(t, err)
	for i, value := range data {
		assert.Equal(t, float32(2*i), value)
	}
}

func TestApply_Union(t *testing.T) {
	dir := t.TempDir()
	ramp1 := writeRamp(t, dir, "ramp1.tif", 1000, 2000, 20, 20)
	ramp2 := writeRamp(t, dir, "ramp2.tif", 1100, 1900, 20, 20)

	inputs := rios.FilenameAssociations{}
	inputs.Set("img", ramp1, ramp2)

	for _, tc := range []struct {
		footprint rios.Footprint
		reference string
		expected  []blockRecord
	}{
		{
			footprint: rios.Intersection,
			expected: []blockRecord{
				{cols: 10, rows: 10, corner: [2]float64{1100, 1900}, first: true, last: true},
			},
		},
		{
			footprint: rios.Union,
			expected: []blockRecord{
				{cols: 30, rows: 30, corner: [2]float64{1000, 2000}, first: true, last: true},
			},
		},
		{
			footprint: rios.BoundsFromReference,
			expected: []blockRecord{
				{cols: 20, rows: 20, corner: [2]float64{1000, 2000}, first: true, last: true},
			},
		},
	} {
		t.Run(tc.footprint.String(), func(t *testing.T) {
			var records []blockRecord
			controls := rios.NewControls(rios.WithFootprint(tc.footprint), rios.WithConcurrency(2))
			assert.NoError(t, rios.Apply(t.Context(), recordBlocks, inputs, nil, &records, controls))
			assert.Equal(t, tc.expected, records)
		})
	}
}

func TestApply_MultipleInputs(t *testing.T) {
	dir := t.TempDir()
	ramp1 := writeRamp(t, dir, "ramp1.tif", 1000, 2000, 20, 20)
	ramp2 := writeRamp(t, dir, "ramp2.tif", 1100, 1900, 20, 20)

	inputs := rios.FilenameAssociations{}
	inputs.Set("a", ramp1)
	inputs.Set("b", ramp2)

	controls := rios.NewControls(rios.WithReferenceImage("b"))
	assert.NoError(t, rios.Apply(t.Context(), func(info *rios.ReaderInfo, inputs, outputs rios.BlockAssociations, _ any) error {
		a, b := inputs.Get("a"), inputs.Get("b")
		assert.Equal(t, 10, a.Cols)
		assert.Equal(t, 10, b.Cols)
		// The working grid starts at ramp1's pixel 10, 10 and ramp2's pixel
		// 0, 0.
		assert.Equal(t, float32(10*20+10), a.At(0, 0))
		assert.Equal(t, float32(0), b.At(0, 0))
		return nil
	}, inputs, nil, nil, controls))
}

func TestApply_Errors(t *testing.T) {
	dir := t.TempDir()
	ramp := writeRamp(t, dir, "ramp.tif", 1000, 2000, 20, 20)
	shifted := writeRamp(t, dir, "shifted.tif", 1005, 2000, 20, 20)
	distant := writeRamp(t, dir, "distant.tif", 9000, 2000, 20, 20)

	noop := func(*rios.ReaderInfo, rios.BlockAssociations, rios.BlockAssociations, any) error {
		return nil
	}
	errUser := errors.New("user")

	for _, tc := range []struct {
		name     string
		inputs   rios.FilenameAssociations
		outputs  rios.FilenameAssociations
		fn       rios.UserFunc[any]
		controls *rios.Controls
		expected error
	}{
		{
			name:     "no_inputs",
			inputs:   rios.FilenameAssociations{},
			fn:       noop,
			expected: rios.ErrNoInputs,
		},
		{
			name:     "misaligned",
			inputs:   rios.FilenameAssociations{"img": {ramp, shifted}},
			fn:       noop,
			expected: rios.ErrGridMismatch,
		},
		{
			name:     "no_intersection",
			inputs:   rios.FilenameAssociations{"img": {ramp, distant}},
			fn:       noop,
			expected: rios.ErrNoIntersection,
		},
		{
			name:     "invalid_controls",
			inputs:   rios.FilenameAssociations{"img": {ramp}},
			fn:       noop,
			controls: rios.NewControls(rios.WithOverlap(-1)),
			expected: rios.ErrInvalidControls,
		},
		{
			name:   "user_error",
			inputs: rios.FilenameAssociations{"img": {ramp}},
			fn: func(*rios.ReaderInfo, rios.BlockAssociations, rios.BlockAssociations, any) error {
				return errUser
			},
			expected: errUser,
		},
		{
			name:     "missing_output",
			inputs:   rios.FilenameAssociations{"img": {ramp}},
			outputs:  rios.FilenameAssociations{"out": {filepath.Join(dir, "out.tif")}},
			fn:       noop,
			expected: rios.ErrMissingOutput,
		},
		{
			name:    "wrong_output_size",
			inputs:  rios.FilenameAssociations{"img": {ramp}},
			outputs: rios.FilenameAssociations{"out": {filepath.Join(dir, "out.tif")}},
			fn: func(_ *rios.ReaderInfo, _, outputs rios.BlockAssociations, _ any) error {
				outputs.Set("out", rios.NewBlock(1, 1, 0))
				return nil
			},
			expected: rios.ErrOutputBlockSize,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := rios.Apply(t.Context(), tc.fn, tc.inputs, tc.outputs, nil, tc.controls)
			assert.IsError(t, err, tc.expected)
		})
	}

	_, err := os.Stat(filepath.Join(dir, "out.tif"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReaderInfo_TransformBlockCoords(t *testing.T) {
	dir := t.TempDir()
	ramp := writeRamp(t, dir, "ramp.tif", 500000, 7000000, 4, 4)

	inputs := rios.FilenameAssociations{}
	inputs.Set("img", ramp)

	assert.NoError(t, rios.Apply(t.Context(), func(info *rios.ReaderInfo, _, _ rios.BlockAssociations, _ any) error {
		lats, lons, err := info.TransformBlockCoords("EPSG:4326")
		if err != nil {
			return err
		}
		assert.Equal(t, 4, len(lats))
		for r := range 4 {
			for c := range 4 {
				// EPSG:28355 is MGA zone 55, whose central meridian is 147E.
				assert.True(t, math.Abs(lons[r][c]-147) < 0.01)
				assert.True(t, -28 < lats[r][c] && lats[r][c] < -26)
			}
		}
		return nil
	}, inputs, nil, nil, nil))
}
