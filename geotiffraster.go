package rios

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone = 1
	compressionLZW  = 5
)

var (
	tileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rios_tile_cache_hits_total",
		Help: "The total number of hits on the decoded tile cache",
	})
	tileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rios_tile_cache_misses_total",
		Help: "The total number of misses on the decoded tile cache",
	})
)

// A GeoTIFFRaster is an open single band float32 GeoTIFF file.
type GeoTIFFRaster struct {
	file                      *os.File
	pixelGrid                 *PixelGrid
	noData                    float32
	hasNoData                 bool
	compression               int
	tileWidth                 int
	tileLength                int
	tilesAcross               int
	tilesDown                 int
	tileOffsets               []uint64
	tileByteCounts            []uint64
	tileSampleCount           int
	tileByteCountUncompressed int
	tileCacheSizeBytes        int
	tileSamplesCache          *lru.Cache[TileCoord, []float32]
}

type GeoTIFFRasterOption func(*GeoTIFFRaster)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// OpenGeoTIFFRaster opens the GeoTIFF file filename in fsys.
func OpenGeoTIFFRaster(fsys fs.FS, filename string, options ...GeoTIFFRasterOption) (*GeoTIFFRaster, error) {
	var err error
	ok := false

	r := &GeoTIFFRaster{
		tileCacheSizeBytes: 16 << 20, // 16MB.
	}
	for _, option := range options {
		option(r)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	if _, ok := file.(*os.File); !ok {
		_ = file.Close()
		return nil, errors.ErrUnsupported
	}
	r.file = file.(*os.File)
	defer func() {
		if !ok {
			_ = r.file.Close()
		}
	}()

	tiffTIFF, err := tiff.Parse(r.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	if len(tiffTIFF.IFDs()) != 1 {
		return nil, fmt.Errorf("%s: found %d IFDs, expected 1", filename, len(tiffTIFF.IFDs()))
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	if ifd.BitsPerSample != 32 ||
		(ifd.Compression != compressionLZW && ifd.Compression != compressionNone) ||
		ifd.SamplesPerPixel != 1 ||
		ifd.PlanarConfiguration != 1 ||
		ifd.Predictor > 1 ||
		ifd.SampleFormat != 3 ||
		ifd.TileWidth == 0 || ifd.TileLength == 0 ||
		len(ifd.ModelPixelScaleTag) != 3 ||
		len(ifd.ModelTiepointTag) != 6 || ifd.ModelTiepointTag[0] != 0 || ifd.ModelTiepointTag[1] != 0 {
		return nil, fmt.Errorf("%s: %w", filename, errors.ErrUnsupported)
	}

	projection := ""
	if len(ifd.GeoKeyDirectoryTag) != 0 {
		parsedGeoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		projection = parsedGeoKeys.Projection()
	}

	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	if scaleX <= 0 || scaleY <= 0 {
		return nil, fmt.Errorf("%s: %w", filename, errors.ErrUnsupported)
	}
	r.pixelGrid = &PixelGrid{
		XMin:       ifd.ModelTiepointTag[3],
		YMax:       ifd.ModelTiepointTag[4],
		XRes:       scaleX,
		YRes:       scaleY,
		NCols:      int(ifd.ImageWidth),
		NRows:      int(ifd.ImageLength),
		Projection: projection,
	}

	r.noData = float32(math.NaN())
	if noDataStr := strings.TrimRight(ifd.GDALNoData, "\x00"); noDataStr != "" {
		noData, err := strconv.ParseFloat(noDataStr, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: no data: %w", filename, err)
		}
		r.noData = float32(noData)
		r.hasNoData = true
	}

	r.compression = int(ifd.Compression)
	r.tileWidth = int(ifd.TileWidth)
	r.tileLength = int(ifd.TileLength)
	r.tilesAcross = (r.pixelGrid.NCols + r.tileWidth - 1) / r.tileWidth
	r.tilesDown = (r.pixelGrid.NRows + r.tileLength - 1) / r.tileLength
	tilesPerImage := r.tilesAcross * r.tilesDown
	if len(ifd.TileByteCounts) != tilesPerImage || len(ifd.TileOffsets) != tilesPerImage {
		return nil, fmt.Errorf("%s: incorrect number of tile byte counts or offsets", filename)
	}
	r.tileOffsets = ifd.TileOffsets
	r.tileByteCounts = ifd.TileByteCounts
	r.tileSampleCount = r.tileWidth * r.tileLength
	r.tileByteCountUncompressed = r.tileSampleCount * int(ifd.BitsPerSample) / 8

	tileCacheCount := max(r.tileCacheSizeBytes/r.tileByteCountUncompressed, 1)
	r.tileSamplesCache, err = lru.New[TileCoord, []float32](tileCacheCount)
	if err != nil {
		return nil, err
	}

	ok = true
	return r, nil
}

func WithTileCacheSize(tileCacheSize int) GeoTIFFRasterOption {
	return func(r *GeoTIFFRaster) {
		r.tileCacheSizeBytes = tileCacheSize
	}
}

func (r *GeoTIFFRaster) Close() error {
	return r.file.Close()
}

// PixelGrid returns r's pixel grid.
func (r *GeoTIFFRaster) PixelGrid() *PixelGrid {
	return r.pixelGrid
}

// NoData returns r's no data value and whether it is set. If it is not set
// then the returned value is NaN.
func (r *GeoTIFFRaster) NoData() (float32, bool) {
	return r.noData, r.hasNoData
}

// ReadWindow returns the samples in the window of cols by rows pixels whose
// top-left pixel is at col, row, in row-major order. The window may extend
// beyond r, in which case the samples outside r are r's no data value.
func (r *GeoTIFFRaster) ReadWindow(ctx context.Context, col, row, cols, rows int) ([]float32, error) {
	if cols < 0 || rows < 0 {
		return nil, errInvalidWindow
	}
	samples := make([]float32, cols*rows)
	for i := range samples {
		samples[i] = r.noData
	}

	// Clip the window to the image.
	minCol, minRow := max(col, 0), max(row, 0)
	maxCol, maxRow := min(col+cols, r.pixelGrid.NCols), min(row+rows, r.pixelGrid.NRows)
	if minCol >= maxCol || minRow >= maxRow {
		return samples, nil
	}

	// Populate samples one tile at a time.
	for tileR := minRow / r.tileLength; tileR <= (maxRow-1)/r.tileLength; tileR++ {
		for tileC := minCol / r.tileWidth; tileC <= (maxCol-1)/r.tileWidth; tileC++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tileSamples, err := r.getTileSamplesCached(TileCoord{C: tileC, R: tileR})
			if err != nil {
				return nil, err
			}
			tileMinCol, tileMinRow := tileC*r.tileWidth, tileR*r.tileLength
			c0, c1 := max(minCol, tileMinCol), min(maxCol, tileMinCol+r.tileWidth)
			for y := max(minRow, tileMinRow); y < min(maxRow, tileMinRow+r.tileLength); y++ {
				src := tileSamples[(y-tileMinRow)*r.tileWidth+c0-tileMinCol : (y-tileMinRow)*r.tileWidth+c1-tileMinCol]
				copy(samples[(y-row)*cols+c0-col:], src)
			}
		}
	}

	return samples, nil
}

// getTileData returns the raw, possibly compressed, tile data for the tile at
// tileCoord.
func (r *GeoTIFFRaster) getTileData(tileCoord TileCoord) ([]byte, error) {
	tileIndex := tileCoord.C + r.tilesAcross*tileCoord.R
	tileByteCount := r.tileByteCounts[tileIndex]
	tileOffset := r.tileOffsets[tileIndex]
	data := make([]byte, tileByteCount)
	switch n, err := r.file.ReadAt(data, int64(tileOffset)); {
	case err != nil:
		return nil, err
	case n != int(tileByteCount):
		return nil, errShortRead
	default:
		return data, nil
	}
}

// decompressTileData decompresses the tile data in compressedData.
func (r *GeoTIFFRaster) decompressTileData(compressedData []byte) ([]byte, error) {
	tileData := make([]byte, r.tileByteCountUncompressed)
	lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
	defer lzwReader.Close()
	for bytesRead := 0; bytesRead < r.tileByteCountUncompressed; {
		n, err := lzwReader.Read(tileData[bytesRead:])
		bytesRead += n
		if err != nil && bytesRead < r.tileByteCountUncompressed {
			return nil, err
		}
	}
	return tileData, nil
}

// decodeTileData decodes tileData.
func (r *GeoTIFFRaster) decodeTileData(tileData []byte) []float32 {
	tileSamples := make([]float32, r.tileSampleCount)
	for i := range r.tileSampleCount {
		b := binary.LittleEndian.Uint32(tileData[i*4 : (i+1)*4])
		tileSamples[i] = math.Float32frombits(b)
	}
	return tileSamples
}

// getTileSamples returns the tile samples at tileCoord.
func (r *GeoTIFFRaster) getTileSamples(tileCoord TileCoord) ([]float32, error) {
	tileData, err := r.getTileData(tileCoord)
	if err != nil {
		return nil, err
	}

	if r.compression == compressionLZW {
		tileData, err = r.decompressTileData(tileData)
		if err != nil {
			return nil, err
		}
	} else if len(tileData) != r.tileByteCountUncompressed {
		return nil, errShortRead
	}

	return r.decodeTileData(tileData), nil
}

// getTileSamplesCached returns the tile at tileCoord using r's cache.
func (r *GeoTIFFRaster) getTileSamplesCached(tileCoord TileCoord) ([]float32, error) {
	if tileSamples, ok := r.tileSamplesCache.Get(tileCoord); ok {
		tileCacheHits.Inc()
		return tileSamples, nil
	}
	tileCacheMisses.Inc()
	tileSamples, err := r.getTileSamples(tileCoord)
	if err != nil {
		return nil, err
	}
	r.tileSamplesCache.Add(tileCoord, tileSamples)
	return tileSamples, nil
}
