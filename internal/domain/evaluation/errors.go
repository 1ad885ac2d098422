package evaluation

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrValidation blocks a run before any network call is made.
	ErrValidation      = errors.New("validation failed")
	ErrNoImage         = fmt.Errorf("%w: at least one image is required", ErrValidation)
	ErrMissingWorkflow = fmt.Errorf("%w: workflow name is required", ErrValidation)
	ErrRunInProgress   = fmt.Errorf("%w: an evaluation is already running", ErrValidation)

	// ErrTransport is a failure reported by the remote model service.
	ErrTransport      = errors.New("ai service error")
	ErrRateLimited    = fmt.Errorf("%w: rate limited", ErrTransport)
	ErrInvalidRequest = fmt.Errorf("%w: invalid request", ErrTransport)
	ErrService        = fmt.Errorf("%w: request failed", ErrTransport)

	// ErrParse covers model output that could not be turned into JSON.
	ErrParse         = errors.New("parse error")
	ErrNoJSON        = fmt.Errorf("%w: no json object found in model output", ErrParse)
	ErrMalformedJSON = fmt.Errorf("%w: malformed json in model output", ErrParse)

	// ErrIncompleteResponse is JSON that does not carry a usable evaluation.
	ErrIncompleteResponse = errors.New("incomplete response")
	ErrSchemaInvalid      = fmt.Errorf("%w: schema invalid", ErrIncompleteResponse)

	ErrCancelled   = errors.New("evaluation cancelled")
	ErrImageDecode = errors.New("image decode failed")
)

// Kind is a stable label for an error class, used in API payloads and the run journal.
type Kind string

const (
	KindNone           Kind = ""
	KindValidation     Kind = "validation"
	KindRateLimit      Kind = "rate_limit"
	KindInvalidRequest Kind = "invalid_request"
	KindService        Kind = "service"
	KindParse          Kind = "parse"
	KindIncomplete     Kind = "incomplete"
	KindCancelled      Kind = "cancelled"
	KindImage          Kind = "image"
	KindInternal       Kind = "internal"
)

// KindOf classifies err. Order matters: the specific transport kinds are checked first.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrTransport):
		return KindService
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrIncompleteResponse):
		return KindIncomplete
	case errors.Is(err, ErrImageDecode):
		return KindImage
	}
	return KindInternal
}

// "rate" and "invalid" only count at the start of a word; "generateContent" is not a rate limit.
var (
	rateWord    = regexp.MustCompile(`(?i)\brate`)
	invalidWord = regexp.MustCompile(`(?i)\binvalid`)
)

// ClassifyServiceMessage turns an error message from the model service into a typed error.
// "rate" wins over "invalid" when both appear.
func ClassifyServiceMessage(msg string) error {
	switch {
	case rateWord.MatchString(msg):
		return fmt.Errorf("%w: %s", ErrRateLimited, msg)
	case invalidWord.MatchString(msg):
		return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}
	return fmt.Errorf("%w: %s", ErrService, msg)
}

// UserMessage is the single line shown to the user for a failed or cancelled run.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindCancelled:
		return "Evaluation cancelled."
	case KindValidation:
		if errors.Is(err, ErrNoImage) {
			return "Please upload at least one screenshot."
		}
		if errors.Is(err, ErrMissingWorkflow) {
			return "Please enter a workflow name."
		}
		if errors.Is(err, ErrRunInProgress) {
			return "An evaluation is already running."
		}
		return "Please check your input."
	case KindRateLimit:
		return "Rate limit reached. Please wait a moment and try again."
	case KindInvalidRequest:
		return "The request was rejected. The image may be too large or in an unsupported format."
	case KindService:
		return "The AI service returned an error: " + err.Error()
	case KindParse:
		return "Could not read the AI response. Please try again."
	case KindIncomplete:
		return "The AI response was incomplete. Please try again."
	case KindImage:
		return "The image could not be read. Please upload a PNG, JPEG, GIF or WebP file."
	}
	return "Evaluation failed: " + err.Error()
}
