// Package decode turns uploaded bytes into an in-memory pixel buffer. It is
// the only place file formats are understood; everything downstream works on
// image.Image values.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrBadInput marks uploads that cannot be decoded into a pixel buffer:
// corrupt files, empty documents, unsupported formats.
var ErrBadInput = errors.New("cannot decode document")

// pdfDPI is the rasterization resolution for PDF pages. 300 DPI keeps small
// receipt print legible for recognition.
const pdfDPI = 300

// Image decodes an uploaded file into a pixel buffer. PDFs are rasterized
// from their first page; HEIC/HEIF photos (common on iPhones) use a dedicated
// decoder since Go's standard image package doesn't support them; everything
// else goes through the registered stdlib decoders.
func Image(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case mimeType == "application/pdf":
		return pdfFirstPage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrBadInput, err)
		}
		return img, nil
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("%w: unsupported image format, expected JPEG, PNG, GIF, HEIC, HEIF or PDF", ErrBadInput)
			}
			return nil, fmt.Errorf("%w: decoding image: %v", ErrBadInput, err)
		}
		return img, nil
	}
}

// pdfFirstPage rasterizes the first page of a PDF. Most receipts are single
// page; later pages are ignored.
func pdfFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrBadInput, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: PDF is empty", ErrBadInput)
	}

	img, err := doc.ImageDPI(0, pdfDPI)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering PDF page: %v", ErrBadInput, err)
	}
	return img, nil
}

// isHEICFormat checks for the HEIC/HEIF ftyp box magic bytes.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format.
func isHEICMimeType(mimeType string) bool {
	return mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
