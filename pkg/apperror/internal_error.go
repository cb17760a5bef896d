package apperror

import "net/http"

type InternalError string

func (err InternalError) Error() string {
	return string(err)
}

func (err InternalError) ErrCode() string {
	return "INTERNAL_SERVER_ERROR"
}

func (err InternalError) StatusCode() int {
	return http.StatusInternalServerError
}
