package middleware

import (
	"bytes"
	"net/http"
)

// responseRecorder tracks the status and size of a response, optionally
// teeing the body into capture.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
	capture *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.capture != nil {
		r.capture.Write(b)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Status reports the response code, defaulting to 200 when the handler wrote
// nothing.
func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
