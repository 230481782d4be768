package shared

import "errors"

var (
	// ErrNotFound indicates an unknown code, product, vendor, PO or barcode.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCode indicates the code is already registered.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrMalformedBarcode indicates a structurally invalid barcode string.
	ErrMalformedBarcode = errors.New("malformed barcode")
	// ErrInvalidState occurs when an operation violates the serial lifecycle.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrValidation indicates invalid input shape.
	ErrValidation = errors.New("invalid input")
	// ErrForbidden indicates a missing elevated role.
	ErrForbidden = errors.New("forbidden")
)

// UserSafeMessage returns a message safe to surface to API consumers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrDuplicateCode):
		return "code already registered"
	case errors.Is(err, ErrMalformedBarcode):
		return "barcode is not a valid 16-character code"
	case errors.Is(err, ErrInvalidState):
		return "operation not allowed in the current state"
	case errors.Is(err, ErrValidation):
		return "request is invalid"
	case errors.Is(err, ErrForbidden):
		return "elevated role required"
	default:
		return "internal error"
	}
}
