package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

// StatusCode reports the HTTP status carried by err, or 500 if none.
func StatusCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	return http.StatusInternalServerError
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, nil
}

// HTMLHandler adapts a page-producing function to an http.HandlerFunc. Coded
// errors are written as plain text with their status and the error message
// as the whole body.
func HTMLHandler(handler func(r *http.Request) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := handler(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, page); err != nil {
			slog.Error("error writing html response", "error", err)
		}
	}
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	var cerr *codedError
	if !errors.As(err, &cerr) {
		slog.Error("received non coded error from endpoint", "path", r.URL.Path, "error", err)
		WriteTextResponse(w, code, "Internal server error.")
		return
	}
	if code >= http.StatusInternalServerError {
		slog.Error("internal server error received in endpoint", "path", r.URL.Path, "error", err)
	}
	WriteTextResponse(w, code, err.Error())
}

// WriteTextResponse writes msg verbatim, without the trailing newline
// http.Error would add.
func WriteTextResponse(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if _, err := io.WriteString(w, msg); err != nil {
		slog.Error("error writing text response", "error", err)
	}
}

func WriteJsonResponse(w http.ResponseWriter, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Error("error writing json response", "error", err)
	}
}
