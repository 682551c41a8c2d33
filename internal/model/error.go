package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeEmptyCart          = "EMPTY_CART"
	ErrCodeInvalidQuantity    = "INVALID_QUANTITY"
	ErrCodeInvalidShipping    = "INVALID_SHIPPING_METHOD"
	ErrCodeInvalidCoupon      = "INVALID_COUPON"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeSizeNotFound       = "SIZE_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeReturnNotFound     = "RETURN_NOT_FOUND"
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeReturnWindow       = "RETURN_WINDOW_EXPIRED"
	ErrCodeReturnExists       = "RETURN_ALREADY_EXISTS"
	ErrCodeOrderNotDelivered  = "ORDER_NOT_DELIVERED"
	ErrCodeOrderNotCancelable = "ORDER_NOT_CANCELABLE"
	ErrCodePaymentIncomplete  = "PAYMENT_INCOMPLETE"
	ErrCodeMissingPaymentRef  = "MISSING_PAYMENT_REFERENCE"
	ErrCodeUnauthorised       = "UNAUTHORIZED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// ErrorKind classifies a DomainError for status signalling.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindUnauthorised
	KindNotFound
	KindConflict
	KindInsufficientStock
)

// HTTPStatus maps an error kind to its response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorised:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInsufficientStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Domain errors for business logic
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped and re-created errors compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// ValidationError builds a field-level validation error.
func ValidationError(code, format string, args ...any) *DomainError {
	return NewDomainError(KindValidation, code, fmt.Sprintf(format, args...))
}

// ConflictError builds a state conflict error.
func ConflictError(code, format string, args ...any) *DomainError {
	return NewDomainError(KindConflict, code, fmt.Sprintf(format, args...))
}

// InsufficientStockError names the product and size that cannot be served.
func InsufficientStockError(productName, size string, available, requested int) *DomainError {
	msg := fmt.Sprintf("Stock insuficiente para %q: disponibles %d, solicitadas %d", productName, available, requested)
	if size != "" {
		msg = fmt.Sprintf("Stock insuficiente para %q (talla %s): disponibles %d, solicitadas %d", productName, size, available, requested)
	}
	return NewDomainError(KindInsufficientStock, ErrCodeInsufficientStock, msg)
}

// AsDomainError unwraps err into a DomainError when it carries one.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain errors
var (
	ErrEmptyCart          = NewDomainError(KindValidation, ErrCodeEmptyCart, "El carrito está vacío")
	ErrInvalidQuantity    = NewDomainError(KindValidation, ErrCodeInvalidQuantity, "La cantidad debe ser mayor que cero")
	ErrInvalidShipping    = NewDomainError(KindValidation, ErrCodeInvalidShipping, "Método de envío no válido")
	ErrInvalidAmount      = NewDomainError(KindValidation, ErrCodeInvalidAmount, "Importe de reembolso no válido")
	ErrInvalidStatus      = NewDomainError(KindValidation, ErrCodeInvalidStatus, "Estado no válido")
	ErrProductNotFound    = NewDomainError(KindNotFound, ErrCodeProductNotFound, "Uno o más productos no existen")
	ErrOrderNotFound      = NewDomainError(KindNotFound, ErrCodeOrderNotFound, "Pedido no encontrado")
	ErrReturnNotFound     = NewDomainError(KindNotFound, ErrCodeReturnNotFound, "Devolución no encontrada")
	ErrUnauthorised       = NewDomainError(KindUnauthorised, ErrCodeUnauthorised, "No autorizado")
	ErrReturnWindow       = NewDomainError(KindConflict, ErrCodeReturnWindow, "El plazo de devolución de 30 días ha expirado")
	ErrReturnExists       = NewDomainError(KindConflict, ErrCodeReturnExists, "Ya existe una devolución activa para este pedido")
	ErrOrderNotDelivered  = NewDomainError(KindConflict, ErrCodeOrderNotDelivered, "Solo se pueden devolver pedidos entregados")
	ErrOrderNotCancelable = NewDomainError(KindConflict, ErrCodeOrderNotCancelable, "Solo se pueden cancelar pedidos pagados y no enviados")
	ErrPaymentIncomplete  = NewDomainError(KindConflict, ErrCodePaymentIncomplete, "El pago no se ha completado")
	ErrMissingPaymentRef  = NewDomainError(KindConflict, ErrCodeMissingPaymentRef, "El pedido no tiene referencia de pago")
)
