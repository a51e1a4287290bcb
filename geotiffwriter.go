package rios

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"

	lzwwriter "github.com/hhrutter/lzw"
)

const defaultWriterTileSize = 256

// TIFF field types.
const (
	tiffASCII  = 2
	tiffShort  = 3
	tiffLong   = 4
	tiffDouble = 12
)

// TIFF tags written by WriteGeoTIFF.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagSamplesPerPixel           = 277
	tagPlanarConfiguration       = 284
	tagPredictor                 = 317
	tagTileWidth                 = 322
	tagTileLength                = 323
	tagTileOffsets               = 324
	tagTileByteCounts            = 325
	tagSampleFormat              = 339
	tagModelPixelScale           = 33550
	tagModelTiepoint             = 33922
	tagGeoKeyDirectory           = 34735
	tagGDALNoData                = 42113
)

type geoTIFFWriterOptions struct {
	tileSize  int
	noData    float32
	hasNoData bool
	compress  bool
}

// A GeoTIFFWriterOption sets an option on WriteGeoTIFF.
type GeoTIFFWriterOption func(*geoTIFFWriterOptions)

// WithNoData sets the no data value written to the GDAL_NODATA tag.
func WithNoData(noData float32) GeoTIFFWriterOption {
	return func(o *geoTIFFWriterOptions) {
		o.noData = noData
		o.hasNoData = true
	}
}

// WithTileSize sets the tile width and length. It must be a multiple of 16.
func WithTileSize(tileSize int) GeoTIFFWriterOption {
	return func(o *geoTIFFWriterOptions) {
		o.tileSize = tileSize
	}
}

// WithCompression sets whether tiles are LZW compressed. The default is true.
func WithCompression(compress bool) GeoTIFFWriterOption {
	return func(o *geoTIFFWriterOptions) {
		o.compress = compress
	}
}

type ifdEntry struct {
	tag       uint16
	fieldType uint16
	count     uint32
	data      []byte
}

// CreateGeoTIFF writes data to a new GeoTIFF file called filename.
func CreateGeoTIFF(filename string, pixelGrid *PixelGrid, data []float32, options ...GeoTIFFWriterOption) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()
	w := bufio.NewWriter(file)
	if err := WriteGeoTIFF(w, pixelGrid, data, options...); err != nil {
		return err
	}
	return w.Flush()
}

// WriteGeoTIFF writes data, a row-major array of pixelGrid.NCols by
// pixelGrid.NRows samples, to w as a single band tiled float32 GeoTIFF.
func WriteGeoTIFF(w io.Writer, pixelGrid *PixelGrid, data []float32, options ...GeoTIFFWriterOption) error {
	o := geoTIFFWriterOptions{
		tileSize: defaultWriterTileSize,
		noData:   float32(math.NaN()),
		compress: true,
	}
	for _, option := range options {
		option(&o)
	}
	switch {
	case o.tileSize <= 0 || o.tileSize%16 != 0:
		return fmt.Errorf("tile size %d: %w", o.tileSize, errors.ErrUnsupported)
	case pixelGrid.NCols <= 0 || pixelGrid.NRows <= 0 || pixelGrid.NCols > math.MaxUint16 || pixelGrid.NRows > math.MaxUint16:
		return fmt.Errorf("%dx%d: %w", pixelGrid.NCols, pixelGrid.NRows, errors.ErrUnsupported)
	case len(data) != pixelGrid.NCols*pixelGrid.NRows:
		return fmt.Errorf("got %d samples, expected %d", len(data), pixelGrid.NCols*pixelGrid.NRows)
	}

	geoKeyDirectory, err := EncodeGeoKeys(pixelGrid.Projection)
	if err != nil {
		return err
	}

	// Encode all tiles. The tiles immediately follow the 8 byte header.
	tilesAcross := (pixelGrid.NCols + o.tileSize - 1) / o.tileSize
	tilesDown := (pixelGrid.NRows + o.tileSize - 1) / o.tileSize
	tiles := make([][]byte, 0, tilesAcross*tilesDown)
	tileOffsets := make([]uint32, 0, tilesAcross*tilesDown)
	tileByteCounts := make([]uint32, 0, tilesAcross*tilesDown)
	offset := uint32(8)
	for tileR := range tilesDown {
		for tileC := range tilesAcross {
			tile, err := encodeTile(pixelGrid, data, o, tileC, tileR)
			if err != nil {
				return err
			}
			tiles = append(tiles, tile)
			tileOffsets = append(tileOffsets, offset)
			tileByteCounts = append(tileByteCounts, uint32(len(tile)))
			offset += uint32(len(tile))
		}
	}
	if offset%2 != 0 {
		offset++
	}
	ifdOffset := offset

	compression := uint16(compressionNone)
	if o.compress {
		compression = compressionLZW
	}
	entries := []ifdEntry{
		shortEntry(tagImageWidth, uint16(pixelGrid.NCols)),
		shortEntry(tagImageLength, uint16(pixelGrid.NRows)),
		shortEntry(tagBitsPerSample, 32),
		shortEntry(tagCompression, compression),
		shortEntry(tagPhotometricInterpretation, 1),
		shortEntry(tagSamplesPerPixel, 1),
		shortEntry(tagPlanarConfiguration, 1),
		shortEntry(tagPredictor, 1),
		shortEntry(tagTileWidth, uint16(o.tileSize)),
		shortEntry(tagTileLength, uint16(o.tileSize)),
		longEntry(tagTileOffsets, tileOffsets...),
		longEntry(tagTileByteCounts, tileByteCounts...),
		shortEntry(tagSampleFormat, 3),
		doubleEntry(tagModelPixelScale, pixelGrid.XRes, pixelGrid.YRes, 0),
		doubleEntry(tagModelTiepoint, 0, 0, 0, pixelGrid.XMin, pixelGrid.YMax, 0),
		shortEntry(tagGeoKeyDirectory, geoKeyDirectory...),
	}
	if o.hasNoData {
		entries = append(entries, asciiEntry(tagGDALNoData, strconv.FormatFloat(float64(o.noData), 'g', -1, 32)))
	}
	slices.SortFunc(entries, func(a, b ifdEntry) int {
		return int(a.tag) - int(b.tag)
	})

	// Values that do not fit in four bytes follow the IFD.
	ifdSize := 2 + 12*len(entries) + 4
	overflowOffset := ifdOffset + uint32(ifdSize)
	var ifd, overflow bytes.Buffer
	_ = binary.Write(&ifd, binary.LittleEndian, uint16(len(entries)))
	for _, entry := range entries {
		_ = binary.Write(&ifd, binary.LittleEndian, entry.tag)
		_ = binary.Write(&ifd, binary.LittleEndian, entry.fieldType)
		_ = binary.Write(&ifd, binary.LittleEndian, entry.count)
		if len(entry.data) <= 4 {
			value := [4]byte{}
			copy(value[:], entry.data)
			ifd.Write(value[:])
			continue
		}
		_ = binary.Write(&ifd, binary.LittleEndian, overflowOffset+uint32(overflow.Len()))
		overflow.Write(entry.data)
		if overflow.Len()%2 != 0 {
			overflow.WriteByte(0)
		}
	}
	_ = binary.Write(&ifd, binary.LittleEndian, uint32(0)) // No next IFD.

	header := [8]byte{'I', 'I'}
	binary.LittleEndian.PutUint16(header[2:4], 42)
	binary.LittleEndian.PutUint32(header[4:8], ifdOffset)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	written := uint32(len(header))
	for _, tile := range tiles {
		if _, err := w.Write(tile); err != nil {
			return err
		}
		written += uint32(len(tile))
	}
	if written < ifdOffset {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	}
	if _, err := w.Write(ifd.Bytes()); err != nil {
		return err
	}
	_, err = w.Write(overflow.Bytes())
	return err
}

// encodeTile returns the encoded tile at tileC, tileR. Samples beyond the
// edge of the image are filled with the no data value.
func encodeTile(pixelGrid *PixelGrid, data []float32, o geoTIFFWriterOptions, tileC, tileR int) ([]byte, error) {
	raw := make([]byte, 4*o.tileSize*o.tileSize)
	for y := range o.tileSize {
		row := tileR*o.tileSize + y
		for x := range o.tileSize {
			col := tileC*o.tileSize + x
			sample := o.noData
			if row < pixelGrid.NRows && col < pixelGrid.NCols {
				sample = data[row*pixelGrid.NCols+col]
			}
			binary.LittleEndian.PutUint32(raw[4*(y*o.tileSize+x):], math.Float32bits(sample))
		}
	}
	if !o.compress {
		return raw, nil
	}
	var buffer bytes.Buffer
	// TIFF LZW increases the code width one code early.
	lzwWriter := lzwwriter.NewWriter(&buffer, true)
	if _, err := lzwWriter.Write(raw); err != nil {
		return nil, err
	}
	if err := lzwWriter.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func shortEntry(tag uint16, values ...uint16) ifdEntry {
	data := make([]byte, 2*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint16(data[2*i:], value)
	}
	return ifdEntry{tag: tag, fieldType: tiffShort, count: uint32(len(values)), data: data}
}

func longEntry(tag uint16, values ...uint32) ifdEntry {
	data := make([]byte, 4*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint32(data[4*i:], value)
	}
	return ifdEntry{tag: tag, fieldType: tiffLong, count: uint32(len(values)), data: data}
}

func doubleEntry(tag uint16, values ...float64) ifdEntry {
	data := make([]byte, 8*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(value))
	}
	return ifdEntry{tag: tag, fieldType: tiffDouble, count: uint32(len(values)), data: data}
}

func asciiEntry(tag uint16, value string) ifdEntry {
	data := append([]byte(value), 0)
	return ifdEntry{tag: tag, fieldType: tiffASCII, count: uint32(len(data)), data: data}
}
