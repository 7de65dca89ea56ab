// Package recognize is the boundary to the text-recognition engines. Engines
// are opaque and possibly slow; callers treat their failures as external
// errors to propagate, not recover.
package recognize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
)

// ErrUnavailable marks an engine backend that cannot be reached.
var ErrUnavailable = errors.New("recognition engine unavailable")

// Engine turns a normalized image into raw text.
type Engine interface {
	// Recognize returns all text found in the image.
	Recognize(img image.Image) (string, error)
	// Close releases engine resources.
	Close() error
}

// Token is one recognized word with its confidence (0-100) and location.
type Token struct {
	Text       string `json:"text"`
	Confidence int    `json:"conf"`
	Box        Box    `json:"box"`
}

// Box is a token's bounding rectangle in image coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// TokenEngine is implemented by engines that can report per-token boxes and
// confidences in addition to plain text.
type TokenEngine interface {
	RecognizeTokens(img image.Image) ([]Token, error)
}

// transcriptionPrompt is the shared prompt used by the vision-model engines.
const transcriptionPrompt = `You are reading a scanned document or receipt. Transcribe every piece of text visible in the image exactly as printed, top to bottom, preserving line breaks between lines.

Important:
- Output the plain text only
- Do not summarize, interpret, or reorder anything
- Do not add commentary, labels, or markdown code blocks
- Keep numbers, punctuation, and currency symbols exactly as printed`

// encodePNG serializes an image for engines that consume encoded bytes.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
