package attachments

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"chat-gateway/internal/models"
)

// Validator checks attachments against the configured size limit and MIME
// allow-list.
type Validator struct {
	maxSize int64
	allowed []string
}

// NewValidator builds a Validator.
func NewValidator(maxSize int64, allowed []string) *Validator {
	return &Validator{maxSize: maxSize, allowed: allowed}
}

// IsSizeValid reports whether size is within the limit.
func (v *Validator) IsSizeValid(size int64) bool {
	return size >= 0 && size <= v.maxSize
}

// IsTypeValid reports whether mimeType is allowed. Aliases and subtypes
// known to mimetype are accepted, e.g. "image/x-png" for "image/png".
func (v *Validator) IsTypeValid(mimeType string) bool {
	detected := mimetype.Lookup(mimeType)
	for _, allowed := range v.allowed {
		if mimeType == allowed {
			return true
		}
		if detected != nil && detected.Is(allowed) {
			return true
		}
	}
	return false
}

// Validate returns a client facing error for the first invalid attachment.
func (v *Validator) Validate(a models.Attachment) error {
	if !v.IsSizeValid(a.Size) {
		return fmt.Errorf("Attachment %d exceeds the maximum size of %d bytes!", a.ID, v.maxSize)
	}
	if !v.IsTypeValid(a.MimeType) {
		return fmt.Errorf("Attachment %d has unsupported type %s!", a.ID, a.MimeType)
	}
	return nil
}
