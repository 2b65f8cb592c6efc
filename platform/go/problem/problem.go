package problem

import (
	"encoding/json"
	"net/http"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
)

// Details is the RFC-7807 response body shared by every handler. Code carries
// the stable taxonomy value so clients do not have to parse titles.
type Details struct {
	Type   string               `json:"type,omitempty"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail string               `json:"detail,omitempty"`
	Code   apperrors.Code       `json:"code,omitempty"`
	Errors *map[string][]string `json:"errors,omitempty"`
}

const (
	typeUnauthenticated = "https://loopcollab.dev/problems/unauthenticated"
	typeForbidden       = "https://loopcollab.dev/problems/forbidden"
	typeValidation      = "https://loopcollab.dev/problems/validation-error"
	typeConflict        = "https://loopcollab.dev/problems/conflict"
	typePrecondition    = "https://loopcollab.dev/problems/precondition-failed"
	typeNotFound        = "https://loopcollab.dev/problems/not-found"
	typeInternal        = "https://loopcollab.dev/problems/internal-error"
)

// StatusFor maps a taxonomy code to its HTTP status.
func StatusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		return http.StatusForbidden
	case apperrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.CodeAlreadyExists:
		return http.StatusConflict
	case apperrors.CodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the problem body for err. Internal causes are never echoed
// to the caller; only the stable message survives.
func FromError(err error) Details {
	code := apperrors.CodeOf(err)
	status := StatusFor(code)

	d := Details{
		Title:  titleFor(code),
		Status: status,
		Code:   code,
	}
	if msg := apperrors.MessageOf(err); msg != "" {
		d.Detail = msg
	}
	if fields := apperrors.FieldsOf(err); len(fields) > 0 {
		d.Errors = &fields
	}
	d.Type = typeFor(code)
	return d
}

// Write serializes the problem body with the right status and content type.
func Write(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

// WriteError is the common path: classify err and emit it.
func WriteError(w http.ResponseWriter, err error) {
	Write(w, FromError(err))
}

func titleFor(code apperrors.Code) string {
	switch code {
	case apperrors.CodeUnauthenticated:
		return "Authentication required"
	case apperrors.CodePermissionDenied:
		return "Forbidden"
	case apperrors.CodeInvalidArgument:
		return "Validation failed"
	case apperrors.CodeAlreadyExists:
		return "Conflict"
	case apperrors.CodeFailedPrecondition:
		return "Precondition failed"
	case apperrors.CodeNotFound:
		return "Resource not found"
	default:
		return "Internal server error"
	}
}

func typeFor(code apperrors.Code) string {
	switch code {
	case apperrors.CodeUnauthenticated:
		return typeUnauthenticated
	case apperrors.CodePermissionDenied:
		return typeForbidden
	case apperrors.CodeInvalidArgument:
		return typeValidation
	case apperrors.CodeAlreadyExists:
		return typeConflict
	case apperrors.CodeFailedPrecondition:
		return typePrecondition
	case apperrors.CodeNotFound:
		return typeNotFound
	default:
		return typeInternal
	}
}
