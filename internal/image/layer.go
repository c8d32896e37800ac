package image

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Modality indicates which instrument acquired an image.
type Modality int

const (
	ModalityUnknown      Modality = iota
	ModalityFluorescence          // light microscope
	ModalityElectron              // SEM
	ModalityIon                   // FIB
)

func (m Modality) String() string {
	switch m {
	case ModalityFluorescence:
		return "Fluorescence"
	case ModalityElectron:
		return "Electron beam"
	case ModalityIon:
		return "Ion beam"
	default:
		return "Unknown"
	}
}

// Layer is an acquired image together with what is known about where it came from.
type Layer struct {
	Path     string   // Original file path
	Image    *Image   // Sample grid used by the correlation core
	Modality Modality // Guessed from the filename unless set by the caller

	// Pixel size in micrometres from TIFF resolution tags, 0 if unknown
	PixelSize float64
}

// Load loads an image from the specified path, applies the adjustments and
// returns a Layer.
func Load(path string, adj Adjustments) (*Layer, error) {
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	img, err = Adjust(img, adj)
	if err != nil {
		return nil, err
	}

	layer := &Layer{
		Path:     path,
		Image:    FromGo(img),
		Modality: guessModalityFromFilename(path),
	}

	if IsTIFF(path) {
		if dpi, err := extractTIFFDPI(path); err == nil {
			layer.PixelSize = 25400 / dpi
		}
	}

	return layer, nil
}

// Width returns the image width in pixels.
func (l *Layer) Width() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Width
}

// Height returns the image height in pixels.
func (l *Layer) Height() int {
	if l.Image == nil {
		return 0
	}
	return l.Image.Height
}

// ContainsPixel reports whether (x, y) lies within the image's pixel bounds.
func (l *Layer) ContainsPixel(x, y float64) bool {
	return x >= 0 && y >= 0 && x <= float64(l.Width()-1) && y <= float64(l.Height()-1)
}

// guessModalityFromFilename attempts to determine the instrument from the filename.
func guessModalityFromFilename(path string) Modality {
	base := strings.ToLower(filepath.Base(path))

	for _, kw := range []string{"fluor", "light", "lm_", "widefield", "confocal"} {
		if strings.Contains(base, kw) {
			return ModalityFluorescence
		}
	}
	for _, kw := range []string{"fib", "ion", "ib_"} {
		if strings.Contains(base, kw) {
			return ModalityIon
		}
	}
	for _, kw := range []string{"sem", "electron", "eb_"} {
		if strings.Contains(base, kw) {
			return ModalityElectron
		}
	}

	return ModalityUnknown
}

// extractTIFFDPI attempts to extract the resolution in pixels per inch from
// TIFF metadata.
func extractTIFFDPI(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	// Read TIFF header to determine byte order
	header := make([]byte, 8)
	if _, err := file.Read(header); err != nil {
		return 0, err
	}

	var byteOrder binary.ByteOrder
	if header[0] == 'I' && header[1] == 'I' {
		byteOrder = binary.LittleEndian
	} else if header[0] == 'M' && header[1] == 'M' {
		byteOrder = binary.BigEndian
	} else {
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	ifdOffset := byteOrder.Uint32(header[4:8])
	if _, err := file.Seek(int64(ifdOffset), 0); err != nil {
		return 0, err
	}

	var numEntries uint16
	if err := binary.Read(file, byteOrder, &numEntries); err != nil {
		return 0, err
	}

	type rationalTag struct {
		tag    uint16
		offset uint32
	}
	var rationals []rationalTag
	var resUnit uint16 = 2 // Default to inches

	// Collect entries first; rational values live elsewhere in the file.
	for i := uint16(0); i < numEntries; i++ {
		entry := make([]byte, 12)
		if _, err := file.Read(entry); err != nil {
			return 0, err
		}

		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])

		switch tag {
		case 282, 283: // XResolution, YResolution
			if fieldType == 5 { // RATIONAL
				rationals = append(rationals, rationalTag{tag, byteOrder.Uint32(entry[8:12])})
			}
		case 296: // ResolutionUnit
			if fieldType == 3 { // SHORT, left-justified in the value field
				resUnit = byteOrder.Uint16(entry[8:10])
			}
		}
	}

	var xRes, yRes float64
	for _, r := range rationals {
		v, err := readTIFFRational(file, int64(r.offset), byteOrder)
		if err != nil {
			return 0, err
		}
		if r.tag == 282 {
			xRes = v
		} else {
			yRes = v
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, fmt.Errorf("no resolution tags found")
	}

	switch resUnit {
	case 1:
		return 0, fmt.Errorf("resolution has no absolute unit")
	case 3: // centimetres
		dpi *= 2.54
	}

	return dpi, nil
}

// readTIFFRational reads a RATIONAL value (two uint32s) at offset.
func readTIFFRational(file *os.File, offset int64, byteOrder binary.ByteOrder) (float64, error) {
	if _, err := file.Seek(offset, 0); err != nil {
		return 0, err
	}
	var num, denom uint32
	if err := binary.Read(file, byteOrder, &num); err != nil {
		return 0, err
	}
	if err := binary.Read(file, byteOrder, &denom); err != nil {
		return 0, err
	}
	if denom == 0 {
		return 0, nil
	}
	return float64(num) / float64(denom), nil
}
