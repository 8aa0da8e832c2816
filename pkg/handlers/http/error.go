package http

import (
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type handlerError struct {
	err  error
	code int
}

func (e *handlerError) Error() string {
	return e.err.Error()
}

type errorHandlerFunc func(http.ResponseWriter, *http.Request) error

// ErrorHandler turns the error of handler into an HTTP error response.
func ErrorHandler(handler errorHandlerFunc, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := handler(w, r)
		if err == nil {
			return
		}
		var herr *handlerError
		if errors.As(err, &herr) {
			if herr.code >= http.StatusInternalServerError {
				log.Error("handler error", zap.Error(err))
			}
			http.Error(w, herr.Error(), herr.code)
			return
		}
		log.Error("handler error", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Error attaches the HTTP status code to err.
func Error(err error, code int) error {
	return &handlerError{err: err, code: code}
}
