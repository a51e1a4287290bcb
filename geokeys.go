package rios

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errParse = errors.New("parse error")

type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS   GeoKey = 2048
	GeoKeyGeogCitation  GeoKey = 2049
	GeoKeyGeodeticDatum GeoKey = 2050
	GeoKeyPrimeMeridian GeoKey = 2051
	GeoKeyAngularUnits  GeoKey = 2054
	GeoKeyEllipsoid     GeoKey = 2056

	GeoKeyProjectedCRS GeoKey = 3072
	GeoKeyPCSCitation  GeoKey = 3073
	GeoKeyProjection   GeoKey = 3074
	GeoKeyProjMethod   GeoKey = 3075
	GeoKeyLinearUnits2 GeoKey = 3076

	GeoKeyVertical GeoKey = 4096
)

const (
	modelTypeProjected    = 1
	modelTypeGeographic   = 2
	rasterTypePixelIsArea = 1
	userDefined           = 32767

	geoDoubleParamsTag = 34736
	geoASCIIParamsTag  = 34737
)

type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, errParse
	}

	if keyDirectoryVersion := int(directory[0]); keyDirectoryVersion != 1 {
		return nil, errParse
	}
	if keyRevision := int(directory[1]); keyRevision != 1 {
		return nil, errParse
	}
	if minorRevision := int(directory[2]); minorRevision != 0 && minorRevision != 1 {
		return nil, errParse
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, errParse
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		keyValues := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(keyValues[0])
		tiffTagLocation := int(keyValues[1])
		numberOfValues := int(keyValues[2])
		index := int(keyValues[3])
		switch tiffTagLocation {
		case 0:
			if numberOfValues != 1 {
				return nil, errParse
			}
			parsedGeoKeys.Params[key] = index
		case geoDoubleParamsTag:
			if numberOfValues != 1 {
				return nil, errors.ErrUnsupported
			}
			if index >= len(doubleParams) {
				return nil, errParse
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[index]
		case geoASCIIParamsTag:
			if index+numberOfValues > len(asciiParams) {
				return nil, errParse
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[index : index+numberOfValues])
		default:
			return nil, errors.ErrUnsupported
		}
	}
	return parsedGeoKeys, nil
}

// Projection returns the projection described by k as an "EPSG:<code>"
// string, or the empty string if k does not reference an EPSG code.
func (k *ParsedGeoKeys) Projection() string {
	for _, key := range []GeoKey{GeoKeyProjectedCRS, GeoKeyGeodeticCRS} {
		if code, ok := k.Params[key]; ok && code != 0 && code != userDefined {
			return "EPSG:" + strconv.Itoa(code)
		}
	}
	return ""
}

// EncodeGeoKeys returns a GeoKey directory describing projection, which must
// be empty or of the form "EPSG:<code>". Codes from 4000 to 4999 are treated
// as geographic CRSs, all others as projected CRSs.
func EncodeGeoKeys(projection string) ([]uint16, error) {
	directory := []uint16{1, 1, 0, 0}
	addKey := func(key GeoKey, value int) {
		directory = append(directory, uint16(key), 0, 1, uint16(value))
		directory[3]++
	}
	if projection == "" {
		addKey(GeoKeyGTRasterType, rasterTypePixelIsArea)
		return directory, nil
	}

	authority, codeStr, ok := strings.Cut(projection, ":")
	if !ok || !strings.EqualFold(authority, "EPSG") {
		return nil, fmt.Errorf("%s: %w", projection, errors.ErrUnsupported)
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code <= 0 || code >= userDefined {
		return nil, fmt.Errorf("%s: %w", projection, errParse)
	}

	// Keys must be sorted.
	if 4000 <= code && code < 5000 {
		addKey(GeoKeyGTModelType, modelTypeGeographic)
		addKey(GeoKeyGTRasterType, rasterTypePixelIsArea)
		addKey(GeoKeyGeodeticCRS, code)
	} else {
		addKey(GeoKeyGTModelType, modelTypeProjected)
		addKey(GeoKeyGTRasterType, rasterTypePixelIsArea)
		addKey(GeoKeyProjectedCRS, code)
	}
	return directory, nil
}
