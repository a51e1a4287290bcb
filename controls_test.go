package rios

import (
	"math"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestNewControls(t *testing.T) {
	controls := NewControls()
	assert.Equal(t, DefaultWindowXSize, controls.WindowXSize)
	assert.Equal(t, DefaultWindowYSize, controls.WindowYSize)
	assert.Equal(t, 0, controls.Overlap)
	assert.Equal(t, Intersection, controls.Footprint)
	assert.True(t, math.IsNaN(float64(controls.OutputNoData)))
	assert.NoError(t, controls.Validate())

	controls = NewControls(
		WithOverlap(2),
		WithWindowSize(64, 32),
		WithFootprint(Union),
		WithReferenceImage("img"),
		WithConcurrency(4),
		WithOutputNoData(-1),
	)
	assert.Equal(t, 2, controls.Overlap)
	assert.Equal(t, 64, controls.WindowXSize)
	assert.Equal(t, 32, controls.WindowYSize)
	assert.Equal(t, Union, controls.Footprint)
	assert.Equal(t, "img", controls.ReferenceImage)
	assert.Equal(t, 4, controls.Concurrency)
	assert.Equal(t, float32(-1), controls.OutputNoData)
}

func TestControls_Validate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		options []ControlsOption
	}{
		{name: "zero_window", options: []ControlsOption{WithWindowSize(0, 256)}},
		{name: "negative_overlap", options: []ControlsOption{WithOverlap(-1)}},
		{name: "negative_concurrency", options: []ControlsOption{WithConcurrency(-1)}},
		{name: "unknown_footprint", options: []ControlsOption{WithFootprint(Footprint(7))}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.IsError(t, NewControls(tc.options...).Validate(), ErrInvalidControls)
		})
	}
}

func TestLoadControls(t *testing.T) {
	controls, err := LoadControls(strings.NewReader("" +
		"windowXSize: 128\n" +
		"overlap: 3\n" +
		"footprint: union\n" +
		"referenceImage: dem\n",
	))
	assert.NoError(t, err)
	assert.Equal(t, 128, controls.WindowXSize)
	assert.Equal(t, DefaultWindowYSize, controls.WindowYSize)
	assert.Equal(t, 3, controls.Overlap)
	assert.Equal(t, Union, controls.Footprint)
	assert.Equal(t, "dem", controls.ReferenceImage)

	controls, err = LoadControls(strings.NewReader(""), WithOverlap(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, controls.Overlap)

	_, err = LoadControls(strings.NewReader("footprint: everywhere\n"))
	assert.IsError(t, err, errUnknownFootprint)

	_, err = LoadControls(strings.NewReader("overlap: -2\n"))
	assert.IsError(t, err, ErrInvalidControls)
}

func TestParseFootprint(t *testing.T) {
	footprint, err := ParseFootprint("Bounds_From_Reference")
	assert.NoError(t, err)
	assert.Equal(t, BoundsFromReference, footprint)

	_, err = ParseFootprint("")
	assert.IsError(t, err, errUnknownFootprint)

	assert.Equal(t, "Footprint(9)", Footprint(9).String())
}
