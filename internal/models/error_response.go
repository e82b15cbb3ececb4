package models

// Коды ошибок, возвращаемые сервисами вызывающей стороне.
const (
	CodeValidationError = "ValidationError"
	CodeBidTooLow       = "BidTooLow"
	CodeProxyTooLow     = "ProxyTooLow"
	CodeSelfOutbid      = "SelfOutbid"
	CodeStateConflict   = "StateConflict"
	CodeNotApproved     = "NotApproved"
	CodeInvalidWindow   = "InvalidWindow"
	CodeInvalidState    = "InvalidState"
	CodeBusy            = "Busy"
	CodeNotFound        = "NotFound"
	CodeForbidden       = "Forbidden"
	CodeExternalFailure = "ExternalDependencyFailure"
	CodeInternal        = "InternalError"
)

// ErrorResponse описывает ошибку с HTTP-кодом, машинным кодом и сообщением.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"reason"`
}

// NewErrorResponse создает новую ошибку с кодом и сообщением.
func NewErrorResponse(statusCode int, code, message string) *ErrorResponse {
	return &ErrorResponse{
		StatusCode: statusCode,
		Code:       code,
		Message:    message}
}

// Реализация метода Error() для удовлетворения интерфейса error.
func (e *ErrorResponse) Error() string {
	return e.Message
}
