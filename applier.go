package rios

import (
	"context"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var blocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rios_blocks_processed_total",
	Help: "The total number of blocks passed to user functions",
})

// A UserFunc is called by Apply for every block. inputs contains one block
// per input filename. The function must set one block per output filename in
// outputs, each the same size as the input blocks. otherArgs is passed
// through unchanged from Apply.
type UserFunc[T any] func(info *ReaderInfo, inputs, outputs BlockAssociations, otherArgs T) error

// An outputRaster accumulates the blocks of one output file.
type outputRaster struct {
	name     string
	index    int
	filename string
	data     []float32
}

// Apply calls fn for every block of the working grid of inputs and writes the
// blocks that fn returns in outputs to the files named in outputs. If
// controls is nil then default controls are used.
func Apply[T any](ctx context.Context, fn UserFunc[T], inputs, outputs FilenameAssociations, otherArgs T, controls *Controls) (err error) {
	if controls == nil {
		controls = NewControls()
	}
	if err := controls.Validate(); err != nil {
		return err
	}
	logger := controls.fieldLogger()

	inputCollection, err := NewInputCollection(inputs,
		WithReferenceName(controls.ReferenceImage),
		WithInputLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := inputCollection.Close(); err == nil {
			err = closeErr
		}
	}()

	workingGrid, err := inputCollection.FindWorkingRegion(controls.Footprint)
	if err != nil {
		return err
	}

	var outputRasters []*outputRaster
	for _, name := range outputs.Names() {
		for index, filename := range outputs[name] {
			data := make([]float32, workingGrid.NCols*workingGrid.NRows)
			for i := range data {
				data[i] = controls.OutputNoData
			}
			outputRasters = append(outputRasters, &outputRaster{
				name:     name,
				index:    index,
				filename: filename,
				data:     data,
			})
		}
	}

	xTotalBlocks := (workingGrid.NCols + controls.WindowXSize - 1) / controls.WindowXSize
	yTotalBlocks := (workingGrid.NRows + controls.WindowYSize - 1) / controls.WindowYSize
	logger.WithFields(logrus.Fields{
		"workingGrid": workingGrid.String(),
		"blocks":      xTotalBlocks * yTotalBlocks,
		"overlap":     controls.Overlap,
		"footprint":   controls.Footprint.String(),
	}).Debug("applying")

	overlap := controls.Overlap
	for yBlock := range yTotalBlocks {
		for xBlock := range xTotalBlocks {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Nominal extent of the block, without overlap.
			col := xBlock * controls.WindowXSize
			row := yBlock * controls.WindowYSize
			cols := min(controls.WindowXSize, workingGrid.NCols-col)
			rows := min(controls.WindowYSize, workingGrid.NRows-row)

			info := &ReaderInfo{
				workingGrid:  workingGrid,
				inputs:       inputCollection,
				controls:     controls,
				xBlock:       xBlock,
				yBlock:       yBlock,
				xTotalBlocks: xTotalBlocks,
				yTotalBlocks: yTotalBlocks,
				col:          col - overlap,
				row:          row - overlap,
				cols:         cols + 2*overlap,
				rows:         rows + 2*overlap,
			}

			inputBlocks, err := inputCollection.ReadBlock(ctx, workingGrid, info.col, info.row, info.cols, info.rows, controls.Concurrency)
			if err != nil {
				return err
			}
			outputBlocks := make(BlockAssociations)

			if err := fn(info, inputBlocks, outputBlocks, otherArgs); err != nil {
				return err
			}
			blocksProcessed.Inc()

			for _, output := range outputRasters {
				if err := output.writeBlock(outputBlocks, info, overlap, cols, rows); err != nil {
					return err
				}
			}

			logger.WithFields(logrus.Fields{
				"xBlock": xBlock,
				"yBlock": yBlock,
			}).Debug("processed block")
		}
	}

	for _, output := range outputRasters {
		options := []GeoTIFFWriterOption{}
		if !math.IsNaN(float64(controls.OutputNoData)) {
			options = append(options, WithNoData(controls.OutputNoData))
		}
		if err := CreateGeoTIFF(output.filename, workingGrid, output.data, options...); err != nil {
			return fmt.Errorf("%s: %w", output.filename, err)
		}
		logger.WithField("filename", output.filename).Debug("wrote output")
	}

	return nil
}

// writeBlock copies the non-overlap interior of o's block in outputBlocks
// into o's data.
func (o *outputRaster) writeBlock(outputBlocks BlockAssociations, info *ReaderInfo, overlap, cols, rows int) error {
	blocks := outputBlocks[o.name]
	if o.index >= len(blocks) || blocks[o.index] == nil {
		return fmt.Errorf("%s[%d]: %w", o.name, o.index, ErrMissingOutput)
	}
	block := blocks[o.index]
	if block.Cols != info.cols || block.Rows != info.rows || len(block.Data) != block.Cols*block.Rows {
		return fmt.Errorf("%s[%d]: got %dx%d, expected %dx%d: %w", o.name, o.index, block.Cols, block.Rows, info.cols, info.rows, ErrOutputBlockSize)
	}
	nCols := info.workingGrid.NCols
	col0, row0 := info.col+overlap, info.row+overlap
	for r := range rows {
		src := block.Data[(r+overlap)*block.Cols+overlap : (r+overlap)*block.Cols+overlap+cols]
		copy(o.data[(row0+r)*nCols+col0:], src)
	}
	return nil
}
