package image

import (
	"errors"
	"fmt"
	goimage "image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"piescope/internal/fault"

	"golang.org/x/image/tiff"
)

// maxCollisions bounds the "(N)" suffix search.
const maxCollisions = 100000

// Decode reads an image file and returns the decoded frame.
func Decode(path string) (goimage.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fault.IO("open image", err)
	}
	defer file.Close()

	img, _, err := goimage.Decode(file)
	if err != nil {
		return nil, fault.IO("decode image", fmt.Errorf("%s: %w", path, err))
	}
	return img, nil
}

// candidate returns path with "(n)" inserted before the extension; n == 0
// returns path unchanged.
func candidate(path string, n int) string {
	if n == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s(%d)%s", strings.TrimSuffix(path, ext), n, ext)
}

// UniquePath returns path if no file exists there, otherwise the first free
// name of the form name(1).ext, name(2).ext, ...
func UniquePath(path string) (string, error) {
	for n := 0; n < maxCollisions; n++ {
		c := candidate(path, n)
		_, err := os.Stat(c)
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		if err != nil {
			return "", fault.IO("find free name", err)
		}
	}
	return "", fault.IO("find free name", fmt.Errorf("%s: no free name after %d attempts", path, maxCollisions))
}

// CreateUnique creates a new file at path, or at the first free "(N)" variant
// when path exists. Existing files are never opened for writing.
func CreateUnique(path string) (*os.File, string, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fault.IO("create output directory", err)
		}
	}
	for n := 0; n < maxCollisions; n++ {
		c := candidate(path, n)
		f, err := os.OpenFile(c, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fault.IO("create file", err)
		}
		return f, c, nil
	}
	return nil, "", fault.IO("create file", fmt.Errorf("%s: no free name after %d attempts", path, maxCollisions))
}

// SaveTIFF encodes the image as a deflate-compressed TIFF at path, renaming on
// collision. It returns the path actually written.
func SaveTIFF(path string, m *Image) (string, error) {
	goImg, err := ToGo(m)
	if err != nil {
		return "", err
	}
	return SaveGoTIFF(path, goImg)
}

// SaveGoTIFF is SaveTIFF for an already rendered image.
func SaveGoTIFF(path string, img goimage.Image) (string, error) {
	f, written, err := CreateUnique(path)
	if err != nil {
		return "", err
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		os.Remove(written)
		return "", fault.IO("encode tiff", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(written)
		return "", fault.IO("close tiff", err)
	}
	return written, nil
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// IsTIFF reports whether the path has a TIFF extension.
func IsTIFF(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".tif" || ext == ".tiff"
}
