package classify

import "github.com/gabriel-vasile/mimetype"

// MimeClassifier sniffs a file's MIME type from its leading bytes.
type MimeClassifier struct {
	enabled bool
}

// NewMimeClassifier builds a MIME classifier. When enabled is false,
// Detect always returns the empty string (tasting.mime_enabled=false).
func NewMimeClassifier(enabled bool) *MimeClassifier {
	return &MimeClassifier{enabled: enabled}
}

// Detect returns the sniffed MIME type, or "" if disabled.
func (m *MimeClassifier) Detect(data []byte) string {
	if !m.enabled {
		return ""
	}
	return mimetype.Detect(data).String()
}
