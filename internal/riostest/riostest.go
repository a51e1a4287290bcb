// Package riostest contains self tests of package rios that run against
// synthetic raster files.
package riostest

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/twpayne/go-rios"
)

// Geometry of the files written by GenRampImageFile.
const (
	DefaultNRows      = 600
	DefaultNCols      = 600
	DefaultPixSize    = 10
	DefaultXLeft      = 500000
	DefaultYTop       = 7000000
	DefaultProjection = "EPSG:28355"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "rios",
	"component": "riostest",
})

type rampOptions struct {
	xLeft float64
	yTop  float64
	ncols int
	nrows int
}

// A RampOption sets an option on GenRampImageFile.
type RampOption func(*rampOptions)

// WithOrigin sets the coordinate of the top-left corner of the ramp.
func WithOrigin(xLeft, yTop float64) RampOption {
	return func(o *rampOptions) {
		o.xLeft = xLeft
		o.yTop = yTop
	}
}

// WithSize sets the number of columns and rows of the ramp.
func WithSize(ncols, nrows int) RampOption {
	return func(o *rampOptions) {
		o.ncols = ncols
		o.nrows = nrows
	}
}

// GenRampArray returns a row-major array whose values increase by one per
// column and by ncols per row.
func GenRampArray(ncols, nrows int) []float32 {
	data := make([]float32, ncols*nrows)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

// GenRampImageFile writes a ramp raster to filename.
func GenRampImageFile(filename string, options ...RampOption) error {
	o := rampOptions{
		xLeft: DefaultXLeft,
		yTop:  DefaultYTop,
		ncols: DefaultNCols,
		nrows: DefaultNRows,
	}
	for _, option := range options {
		option(&o)
	}
	pixelGrid := &rios.PixelGrid{
		XMin:       o.xLeft,
		YMax:       o.yTop,
		XRes:       DefaultPixSize,
		YRes:       DefaultPixSize,
		NCols:      o.ncols,
		NRows:      o.nrows,
		Projection: DefaultProjection,
	}
	logger.WithFields(logrus.Fields{
		"filename": filename,
		"grid":     pixelGrid.String(),
	}).Debug("writing ramp")
	return rios.CreateGeoTIFF(filename, pixelGrid, GenRampArray(o.ncols, o.nrows))
}

// A Reporter writes test report lines.
type Reporter struct {
	w io.Writer
}

// NewReporter returns a new Reporter that writes to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{
		w: w,
	}
}

// ReportStart reports that testName has started.
func (r *Reporter) ReportStart(testName string) {
	fmt.Fprintf(r.w, "Starting test: %s\n", testName)
}

// Report reports message for testName.
func (r *Reporter) Report(testName, message string) {
	fmt.Fprintf(r.w, "%s %s\n", testName, message)
}

// ReportResult reports whether testName passed.
func (r *Reporter) ReportResult(testName string, ok bool) {
	if ok {
		r.Report(testName, "Passed")
	} else {
		r.Report(testName, "Failed")
	}
}
