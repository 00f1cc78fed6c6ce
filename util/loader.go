// Package util - Loading of still images and ordered frame sequences from disk.
package util

import (
	"bytes"
	"cmp"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the trailing frame number of the file name, or -1 if it has none.
	Frame int
}

// Decode decodes the file contents, applying any EXIF orientation.
func (f ImageFile) Decode() (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", f.Path)
	}
	return img, nil
}

// LoadImage opens and decodes a single image, applying any EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return img, nil
}

// IsImage reports whether the file name has an extension the decoder supports.
func IsImage(name string) bool {
	_, err := imaging.FormatFromFilename(name)
	return err == nil
}

// LoadDirectoryImageFiles reads all image files from a directory in frame order.
//
// Files are ordered by the number at the end of their base name ("frame-12.png" is frame 12),
// then by name. Files without a number come first. Subdirectories and files with unsupported
// extensions are skipped.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", dir)
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() || !IsImage(file.Name()) {
			continue
		}

		imgPath := filepath.Join(dir, file.Name())
		data, readErr := os.ReadFile(imgPath)
		if readErr != nil {
			return nil, errors.Wrapf(readErr, "failed to read %s", imgPath)
		}

		images = append(images, ImageFile{
			Path:  imgPath,
			Data:  data,
			Frame: FrameNumber(file.Name()),
		})
	}

	slices.SortStableFunc(images, func(a, b ImageFile) int {
		return cmp.Or(cmp.Compare(a.Frame, b.Frame), cmp.Compare(a.Path, b.Path))
	})

	return images, nil
}

// LoadFrames loads and decodes every image of a directory in frame order.
func LoadFrames(dir string) ([]image.Image, []ImageFile, error) {
	files, err := LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	frames := make([]image.Image, len(files))
	for i, f := range files {
		if frames[i], err = f.Decode(); err != nil {
			return nil, nil, err
		}
	}

	return frames, files, nil
}

// FrameNumber returns the number at the end of the base name, or -1.
//
// @example
// FrameNumber("frame-0042.jpg") // 42
// FrameNumber("cover.png")      // -1
func FrameNumber(name string) int {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	digits := strings.TrimRightFunc(base, unicode.IsDigit)
	n, err := strconv.Atoi(base[len(digits):])
	if err != nil {
		return -1
	}
	return n
}
