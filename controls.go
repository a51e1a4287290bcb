package rios

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWindowXSize = 256
	DefaultWindowYSize = 256
)

// A Footprint determines how the extents of multiple inputs are combined into
// the working grid.
type Footprint int

const (
	Intersection Footprint = iota
	Union
	BoundsFromReference
)

var footprintNames = map[Footprint]string{
	Intersection:        "intersection",
	Union:               "union",
	BoundsFromReference: "bounds_from_reference",
}

func (f Footprint) String() string {
	if name, ok := footprintNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Footprint(%d)", int(f))
}

// ParseFootprint returns the Footprint called name.
func ParseFootprint(name string) (Footprint, error) {
	for footprint, footprintName := range footprintNames {
		if strings.EqualFold(name, footprintName) {
			return footprint, nil
		}
	}
	return 0, fmt.Errorf("%s: %w", name, errUnknownFootprint)
}

func (f *Footprint) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	footprint, err := ParseFootprint(name)
	if err != nil {
		return err
	}
	*f = footprint
	return nil
}

func (f Footprint) MarshalYAML() (any, error) {
	return f.String(), nil
}

// Controls controls the behavior of Apply.
type Controls struct {
	WindowXSize    int       `yaml:"windowXSize"`
	WindowYSize    int       `yaml:"windowYSize"`
	Overlap        int       `yaml:"overlap"`
	Footprint      Footprint `yaml:"footprint"`
	ReferenceImage string    `yaml:"referenceImage"`
	Concurrency    int       `yaml:"concurrency"`
	OutputNoData   float32   `yaml:"-"`

	// Logger receives diagnostic messages. It defaults to the package logger.
	Logger logrus.FieldLogger `yaml:"-"`
}

// A ControlsOption sets an option on a Controls.
type ControlsOption func(*Controls)

// NewControls returns a new Controls with the given options.
func NewControls(options ...ControlsOption) *Controls {
	c := &Controls{
		WindowXSize:  DefaultWindowXSize,
		WindowYSize:  DefaultWindowYSize,
		Footprint:    Intersection,
		Concurrency:  1,
		OutputNoData: float32(math.NaN()),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// LoadControls reads Controls from YAML in r. Fields not present in r keep
// their default values.
func LoadControls(r io.Reader, options ...ControlsOption) (*Controls, error) {
	c := NewControls()
	if err := yaml.NewDecoder(r).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	for _, option := range options {
		option(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func WithWindowSize(xSize, ySize int) ControlsOption {
	return func(c *Controls) {
		c.SetWindowSize(xSize, ySize)
	}
}

func WithOverlap(overlap int) ControlsOption {
	return func(c *Controls) {
		c.SetOverlap(overlap)
	}
}

func WithFootprint(footprint Footprint) ControlsOption {
	return func(c *Controls) {
		c.SetFootprint(footprint)
	}
}

func WithReferenceImage(name string) ControlsOption {
	return func(c *Controls) {
		c.SetReferenceImage(name)
	}
}

func WithConcurrency(concurrency int) ControlsOption {
	return func(c *Controls) {
		c.Concurrency = concurrency
	}
}

func WithOutputNoData(noData float32) ControlsOption {
	return func(c *Controls) {
		c.OutputNoData = noData
	}
}

func WithLogger(logger logrus.FieldLogger) ControlsOption {
	return func(c *Controls) {
		c.Logger = logger
	}
}

// SetOverlap sets the number of pixels by which each block is extended on
// every side.
func (c *Controls) SetOverlap(overlap int) {
	c.Overlap = overlap
}

// SetWindowSize sets the nominal block size.
func (c *Controls) SetWindowSize(xSize, ySize int) {
	c.WindowXSize = xSize
	c.WindowYSize = ySize
}

func (c *Controls) SetFootprint(footprint Footprint) {
	c.Footprint = footprint
}

// SetReferenceImage sets the name of the input association whose first
// raster defines the pixel grid. The empty string selects the first input
// in name order.
func (c *Controls) SetReferenceImage(name string) {
	c.ReferenceImage = name
}

// Validate returns an error if c is not usable.
func (c *Controls) Validate() error {
	switch {
	case c.WindowXSize <= 0 || c.WindowYSize <= 0:
		return fmt.Errorf("window size %dx%d: %w", c.WindowXSize, c.WindowYSize, ErrInvalidControls)
	case c.Overlap < 0:
		return fmt.Errorf("overlap %d: %w", c.Overlap, ErrInvalidControls)
	case c.Concurrency < 0:
		return fmt.Errorf("concurrency %d: %w", c.Concurrency, ErrInvalidControls)
	}
	if _, ok := footprintNames[c.Footprint]; !ok {
		return fmt.Errorf("%s: %w", c.Footprint, ErrInvalidControls)
	}
	return nil
}

func (c *Controls) fieldLogger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger
}
