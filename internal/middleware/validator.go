package middleware

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

// Input validation and sanitization utilities. Every failure wraps
// evaluation.ErrValidation so the router answers 400.

const (
	MaxWorkflowLen = 200
	MaxContextLen  = 4000
	MaxFileNameLen = 255
)

// AllowedImageTypes are the media types accepted on upload.
var AllowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{evaluation.ErrValidation}, args...)...)
}

// ValidateID checks session, image and run ids (uuid).
func ValidateID(kind, id string) error {
	if id == "" {
		return invalid("%s id cannot be empty", kind)
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid("invalid %s id format", kind)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// SanitizeContext cleans every field and enforces length limits.
// An empty workflow name is allowed here; it is rejected when a run starts.
func SanitizeContext(c evaluation.Context) (evaluation.Context, error) {
	out := evaluation.Context{
		WorkflowName: SanitizeString(c.WorkflowName),
		EpicDetails:  SanitizeString(c.EpicDetails),
		Persona:      SanitizeString(c.Persona),
		UseCase:      SanitizeString(c.UseCase),
	}
	if utf8.RuneCountInString(out.WorkflowName) > MaxWorkflowLen {
		return evaluation.Context{}, invalid("workflow name longer than %d characters", MaxWorkflowLen)
	}
	for name, v := range map[string]string{"epic details": out.EpicDetails, "persona": out.Persona, "use case": out.UseCase} {
		if utf8.RuneCountInString(v) > MaxContextLen {
			return evaluation.Context{}, invalid("%s longer than %d characters", name, MaxContextLen)
		}
	}
	return out, nil
}

// SanitizeFileName keeps only the base name of an uploaded file.
func SanitizeFileName(name string) string {
	name = SanitizeString(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "image"
	}
	// limit is in bytes; cut at a rune start so the name stays valid UTF-8
	if len(name) > MaxFileNameLen {
		n := MaxFileNameLen
		for n > 0 && !utf8.RuneStart(name[n]) {
			n--
		}
		name = name[:n]
	}
	return name
}

// DetectImageType sniffs the media type from the leading bytes.
func DetectImageType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", invalid("empty file")
	}
	mt := http.DetectContentType(data)
	if mt == "application/octet-stream" && len(data) >= 4 {
		// DetectContentType does not know TIFF
		if string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*" {
			mt = "image/tiff"
		}
	}
	if !AllowedImageTypes[mt] {
		return "", invalid("unsupported file type %s (allowed: png, jpeg, gif, webp, bmp, tiff)", mt)
	}
	return mt, nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7
	}
	if days > 365 {
		return 365
	}
	return days
}
