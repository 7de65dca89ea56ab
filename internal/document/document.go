package document

import "time"

// Extraction is the stored outcome of one processed upload: the recognized
// raw text plus the field values resolved from it. A field that no rule
// matched holds nil, which serializes as JSON null, distinct from a present
// empty string.
type Extraction struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename"`
	ContentType string             `json:"content_type"`
	StoredPath  string             `json:"stored_path"`
	Fields      map[string]*string `json:"fields"`
	RawText     string             `json:"raw_text"`
	CreatedAt   time.Time          `json:"created_at"`
}
