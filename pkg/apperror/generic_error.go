package apperror

// GenericError is implemented by every application error so handlers can map
// them to HTTP responses without type switching on concrete errors.
type GenericError interface {
	error
	ErrCode() string
	StatusCode() int
}
