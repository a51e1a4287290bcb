package rios

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// An input is a single raster of an InputCollection.
type input struct {
	name     string
	index    int
	filename string
	raster   Raster
}

// An InputCollection is the set of open rasters read by Apply.
type InputCollection struct {
	inputs         []*input
	rasters        map[string]Raster
	referenceInput *input
	logger         logrus.FieldLogger
}

// An InputCollectionOption sets an option on an InputCollection.
type InputCollectionOption func(*inputCollectionOptions)

type inputCollectionOptions struct {
	referenceName        string
	logger               logrus.FieldLogger
	geoTIFFRasterOptions []GeoTIFFRasterOption
	openFunc             func(filename string) (Raster, error)
}

// WithReferenceName sets the name of the input whose first raster is the
// reference.
func WithReferenceName(name string) InputCollectionOption {
	return func(o *inputCollectionOptions) {
		o.referenceName = name
	}
}

func WithInputLogger(logger logrus.FieldLogger) InputCollectionOption {
	return func(o *inputCollectionOptions) {
		o.logger = logger
	}
}

func WithGeoTIFFRasterOptions(geoTIFFRasterOptions ...GeoTIFFRasterOption) InputCollectionOption {
	return func(o *inputCollectionOptions) {
		o.geoTIFFRasterOptions = geoTIFFRasterOptions
	}
}

// WithOpenFunc sets the function used to open rasters. The default opens
// GeoTIFF files.
func WithOpenFunc(openFunc func(filename string) (Raster, error)) InputCollectionOption {
	return func(o *inputCollectionOptions) {
		o.openFunc = openFunc
	}
}

// NewInputCollection opens every filename in inputs. Each distinct filename
// is opened once.
func NewInputCollection(inputs FilenameAssociations, options ...InputCollectionOption) (*InputCollection, error) {
	o := inputCollectionOptions{
		logger: logger,
	}
	for _, option := range options {
		option(&o)
	}
	if o.openFunc == nil {
		o.openFunc = func(filename string) (Raster, error) {
			return OpenGeoTIFFRaster(os.DirFS(filepath.Dir(filename)), filepath.Base(filename), o.geoTIFFRasterOptions...)
		}
	}

	c := &InputCollection{
		rasters: make(map[string]Raster),
		logger:  o.logger,
	}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	for _, name := range inputs.Names() {
		for index, filename := range inputs[name] {
			raster, found := c.rasters[filename]
			if !found {
				var err error
				raster, err = o.openFunc(filename)
				if err != nil {
					return nil, err
				}
				c.rasters[filename] = raster
			}
			c.inputs = append(c.inputs, &input{
				name:     name,
				index:    index,
				filename: filename,
				raster:   raster,
			})
		}
	}
	if len(c.inputs) == 0 {
		return nil, ErrNoInputs
	}

	c.referenceInput = c.inputs[0]
	if o.referenceName != "" {
		c.referenceInput = nil
		for _, input := range c.inputs {
			if input.name == o.referenceName {
				c.referenceInput = input
				break
			}
		}
		if c.referenceInput == nil {
			return nil, fmt.Errorf("%s: reference image not found in inputs", o.referenceName)
		}
	}

	ok = true
	return c, nil
}

// Close closes all of c's rasters.
func (c *InputCollection) Close() error {
	var errs []error
	for _, raster := range c.rasters {
		errs = append(errs, raster.Close())
	}
	c.rasters = nil
	return errors.Join(errs...)
}

// Len returns the number of inputs in c.
func (c *InputCollection) Len() int {
	return len(c.inputs)
}

// ReferenceGrid returns the pixel grid of c's reference raster.
func (c *InputCollection) ReferenceGrid() *PixelGrid {
	return c.referenceInput.raster.PixelGrid()
}

// CheckAllMatch returns an error wrapping ErrGridMismatch if any input's grid
// does not match the reference grid's pixel size, projection and alignment.
func (c *InputCollection) CheckAllMatch() error {
	referenceGrid := c.ReferenceGrid()
	for _, input := range c.inputs {
		grid := input.raster.PixelGrid()
		logger := c.logger.WithFields(logrus.Fields{
			"filename":  input.filename,
			"reference": c.referenceInput.filename,
		})
		switch {
		case !referenceGrid.EqualPixSize(grid):
			logger.WithFields(logrus.Fields{
				"xRes":          grid.XRes,
				"yRes":          grid.YRes,
				"referenceXRes": referenceGrid.XRes,
				"referenceYRes": referenceGrid.YRes,
			}).Warn("Pixel sizes don't match")
			return fmt.Errorf("%s: pixel size: %w", input.filename, ErrGridMismatch)
		case !referenceGrid.EqualProjection(grid):
			logger.WithFields(logrus.Fields{
				"projection":          grid.Projection,
				"referenceProjection": referenceGrid.Projection,
			}).Warn("Coordinate systems don't match")
			return fmt.Errorf("%s: projection: %w", input.filename, ErrGridMismatch)
		case !referenceGrid.AlignedWith(grid):
			logger.Warn("Images aren't on the same grid")
			return fmt.Errorf("%s: alignment: %w", input.filename, ErrGridMismatch)
		}
	}
	return nil
}

// FindWorkingRegion returns the working grid of c's inputs combined according
// to footprint.
func (c *InputCollection) FindWorkingRegion(footprint Footprint) (*PixelGrid, error) {
	if err := c.CheckAllMatch(); err != nil {
		return nil, err
	}
	grids := make([]*PixelGrid, 0, len(c.inputs))
	for _, input := range c.inputs {
		grids = append(grids, input.raster.PixelGrid())
	}
	return FindCommonRegion(grids, c.ReferenceGrid(), footprint)
}

// ReadBlock reads the window of cols by rows pixels whose top-left pixel is at
// col, row of workingGrid from every input. At most concurrency inputs are
// read in parallel.
func (c *InputCollection) ReadBlock(ctx context.Context, workingGrid *PixelGrid, col, row, cols, rows, concurrency int) (BlockAssociations, error) {
	blocks := make([]*Block, len(c.inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, input := range c.inputs {
		g.Go(func() error {
			offsetCol, offsetRow := input.raster.PixelGrid().Offset(workingGrid)
			data, err := input.raster.ReadWindow(ctx, offsetCol+col, offsetRow+row, cols, rows)
			if err != nil {
				return fmt.Errorf("%s: %w", input.filename, err)
			}
			blocks[i] = &Block{
				Cols: cols,
				Rows: rows,
				Data: data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	blockAssociations := make(BlockAssociations)
	for i, input := range c.inputs {
		blockAssociations[input.name] = append(blockAssociations[input.name], blocks[i])
	}
	return blockAssociations, nil
}

// Filenames returns the filenames associated with name.
func (c *InputCollection) Filenames(name string) []string {
	var filenames []string
	for _, input := range c.inputs {
		if input.name == name {
			filenames = append(filenames, input.filename)
		}
	}
	return filenames
}

// NoData returns the no data value of the index'th raster associated with
// name.
func (c *InputCollection) NoData(name string, index int) (float32, bool) {
	for _, input := range c.inputs {
		if input.name == name && input.index == index {
			return input.raster.NoData()
		}
	}
	return 0, false
}
