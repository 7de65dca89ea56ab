package recognize

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with a local Tesseract installation via
// gosseract. It is the only engine that can report per-token boxes.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a Tesseract engine. An empty lang defaults to English.
// Pages are segmented as a single uniform block of text, which suits the
// column layout of receipts.
func NewTesseract(lang string) (*Tesseract, error) {
	if lang == "" {
		lang = "eng"
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}

	return &Tesseract{client: client}, nil
}

// Recognize returns the raw text Tesseract reads from the image.
func (t *Tesseract) Recognize(img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	// gosseract clients are not safe for concurrent use
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return text, nil
}

// RecognizeTokens returns word-level tokens with confidences and bounding
// boxes.
func (t *Tesseract) RecognizeTokens(img image.Image) ([]Token, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("setting image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognizing tokens: %w", err)
	}

	tokens := make([]Token, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		tokens = append(tokens, Token{
			Text:       b.Word,
			Confidence: int(b.Confidence),
			Box: Box{
				X: b.Box.Min.X,
				Y: b.Box.Min.Y,
				W: b.Box.Dx(),
				H: b.Box.Dy(),
			},
		})
	}
	return tokens, nil
}

// Close releases the underlying Tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
