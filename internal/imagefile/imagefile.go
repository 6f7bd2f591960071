// Package imagefile reads and writes image files, picking the codec from
// the file extension.
package imagefile

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is an image file format.
type Format int

const (
	None Format = iota
	PNG
	JPEG
	GIF
	TIFF
	BMP
	WebP
)

var formatNames = [...]string{"none", "png", "jpeg", "gif", "tiff", "bmp", "webp"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// ErrUnknownFormat is returned for extensions without a codec.
var ErrUnknownFormat = errors.New("imagefile: unknown image format")

// JPEGQuality is the quality used by Write for JPEG output.
const JPEGQuality = 90

// ExtToFormat returns the format for a file extension, with or without
// the leading dot.
func ExtToFormat(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "tif", "tiff":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	case "webp":
		return WebP, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
}

// Open reads the image file at path.
func Open(path string) (image.Image, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, None, err
	}
	defer f.Close()
	img, format, err := Read(f)
	if err != nil {
		return nil, None, fmt.Errorf("imagefile: %s: %w", path, err)
	}
	return img, format, nil
}

// Read decodes an image in any registered format.
func Read(r io.Reader) (image.Image, Format, error) {
	img, name, err := image.Decode(r)
	if err != nil {
		return nil, None, err
	}
	format, err := ExtToFormat(name)
	if err != nil {
		return img, None, nil
	}
	return img, format, nil
}

// Save writes img to path, encoded by the path's extension.
func Save(img image.Image, path string) error {
	format, err := ExtToFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	err = Write(img, bw, format)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("imagefile: save %s: %w", path, err)
	}
	return nil
}

// Write encodes img to w. WebP has no encoder and is rejected.
func Write(img image.Image, w io.Writer, format Format) error {
	switch format {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case GIF:
		return gif.Encode(w, img, nil)
	case TIFF:
		return tiff.Encode(w, img, nil)
	case BMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("%w: no encoder for %v", ErrUnknownFormat, format)
}
