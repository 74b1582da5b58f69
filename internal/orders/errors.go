package orders

import (
	"errors"
	"fmt"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
)

// Kind is the stable, client visible error code.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindOrderAccessDenied   Kind = "ORDER_ACCESS_DENIED"
	KindOrderNotFound       Kind = "ORDER_NOT_FOUND"
	KindProductNotFound     Kind = "PRODUCT_NOT_FOUND"
	KindProductNotOrderable Kind = "PRODUCT_NOT_ORDERABLE"
	KindInsufficientStock   Kind = "INSUFFICIENT_STOCK"
	KindInvalidOrderStatus  Kind = "INVALID_ORDER_STATUS"
	KindInternal            Kind = "INTERNAL_SERVER_ERROR"
)

var defaultMessages = map[Kind]string{
	KindValidation:          "invalid input",
	KindUnauthorized:        "authentication required",
	KindOrderAccessDenied:   "no permission to access this order",
	KindOrderNotFound:       "order not found",
	KindProductNotFound:     "product not found",
	KindProductNotOrderable: "product is not available for ordering",
	KindInsufficientStock:   "insufficient stock",
	KindInvalidOrderStatus:  "invalid order status",
	KindInternal:            "internal server error",
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the Err* values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, message string, cause error) *Error {
	if message == "" {
		message = defaultMessages[kind]
	}
	return &Error{Kind: kind, Message: message, Err: cause}
}

var (
	ErrValidation          = newError(KindValidation, "", nil)
	ErrUnauthorized        = newError(KindUnauthorized, "", nil)
	ErrOrderAccessDenied   = newError(KindOrderAccessDenied, "", nil)
	ErrOrderNotFound       = newError(KindOrderNotFound, "", nil)
	ErrProductNotFound     = newError(KindProductNotFound, "", nil)
	ErrProductNotOrderable = newError(KindProductNotOrderable, "", nil)
	ErrInsufficientStock   = newError(KindInsufficientStock, "", nil)
	ErrInvalidOrderStatus  = newError(KindInvalidOrderStatus, "", nil)
	ErrInternal            = newError(KindInternal, "", nil)
)

// KindOf classifies err; anything not raised by this package is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is safe to show to callers: internal failures carry no detail.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return defaultMessages[KindInternal]
}

var (
	// errNotFound is what Store implementations return for an unknown order id.
	errNotFound = errors.New("orders: not found")
	// errStatusConflict: the conditional status update matched no row.
	errStatusConflict = errors.New("orders: status changed concurrently")
)

func mapLedgerError(err error, productID string) error {
	switch {
	case errors.Is(err, inventory.ErrProductNotFound):
		return newError(KindProductNotFound, "product not found: "+productID, err)
	case errors.Is(err, inventory.ErrProductNotOrderable):
		return newError(KindProductNotOrderable, "product is not available for ordering: "+productID, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		return newError(KindInsufficientStock, "insufficient stock for product: "+productID, err)
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return newError(KindValidation, "quantity must be at least 1", err)
	}
	return err
}
