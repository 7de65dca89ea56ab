package document

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/docufield/docufield/internal/decode"
	"github.com/docufield/docufield/internal/extract"
	"github.com/docufield/docufield/internal/recognize"
)

// Normalizer conditions a decoded pixel buffer for recognition.
type Normalizer interface {
	Normalize(img image.Image) (*image.Gray, error)
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the extraction pipeline and keeps its history. Each request
// flows strictly through decode, normalize, recognize, extract; the schema
// is the only state shared across requests.
type Service struct {
	db          DB
	engine      recognize.Engine
	normalizer  Normalizer
	schema      *extract.Schema
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, engine recognize.Engine, normalizer Normalizer, schema *extract.Schema, storage Storage) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		normalizer:  normalizer,
		schema:      schema,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, engine recognize.Engine, normalizer Normalizer, schema *extract.Schema, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		engine:      engine,
		normalizer:  normalizer,
		schema:      schema,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "document"
	}

	return base + ext
}

// ProcessDocument runs the full pipeline on an upload: decode the bytes into
// a pixel buffer, normalize it, recognize text, extract fields, then persist
// the original file and the extraction record. Fields that resolve to absent
// are a normal outcome, never an error.
func (s *Service) ProcessDocument(filename string, data []byte, contentType string) (*Extraction, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	img, err := decode.Image(data, contentType)
	if err != nil {
		return nil, err
	}

	normalized, err := s.normalizer.Normalize(img)
	if err != nil {
		return nil, fmt.Errorf("%w: normalizing image: %v", decode.ErrBadInput, err)
	}

	text, err := s.engine.Recognize(normalized)
	if err != nil {
		slog.Error("Failed to recognize text",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	fields := s.schema.ExtractFields(text)

	cleanFilename := sanitizeFilename(filename)
	storedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	extraction := &Extraction{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		StoredPath:  storedPath,
		Fields:      fields,
		RawText:     text,
		CreatedAt:   now,
	}

	if err := s.db.SaveExtraction(extraction); err != nil {
		// Clean up file if database save fails
		s.storage.Delete(storedPath)
		return nil, fmt.Errorf("saving extraction to database: %w", err)
	}

	return extraction, nil
}

// GetExtraction retrieves an extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return extraction, nil
}

// ListExtractions returns all extractions
func (s *Service) ListExtractions() ([]*Extraction, error) {
	extractions, err := s.db.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return extractions, nil
}

// DeleteExtraction removes an extraction and its stored file
func (s *Service) DeleteExtraction(id string) error {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return fmt.Errorf("getting extraction for deletion: %w", err)
	}

	if err := s.storage.Delete(extraction.StoredPath); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "path", extraction.StoredPath, "error", err)
	}

	if err := s.db.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction from database: %w", err)
	}
	return nil
}

// GetExtractionFile retrieves the original uploaded file for an extraction
func (s *Service) GetExtractionFile(id string) ([]byte, string, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction: %w", err)
	}

	data, err := s.storage.Get(extraction.StoredPath)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction file: %w", err)
	}

	return data, extraction.ContentType, nil
}

// Fields returns the schema's field names together with their pattern texts.
func (s *Service) Fields() map[string][]string {
	out := make(map[string][]string)
	for _, name := range s.schema.Fields() {
		rules, _ := s.schema.Rules(name)
		exprs := make([]string, 0, len(rules))
		for _, r := range rules {
			exprs = append(exprs, r.Expr())
		}
		out[name] = exprs
	}
	return out
}

// AddField inserts or replaces the rule list for a field. Subsequent
// extractions use the new rules; in-flight ones finish on their snapshot.
func (s *Service) AddField(name string, patterns []string) error {
	return s.schema.AddField(name, patterns...)
}
