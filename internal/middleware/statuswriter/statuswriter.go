// Package statuswriter wraps a http.ResponseWriter so middleware can
// observe the status code a handler wrote.
package statuswriter

import "net/http"

type Recorder struct {
	http.ResponseWriter

	status int
}

func Wrap(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}

	r.ResponseWriter.WriteHeader(status)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(b)
}

// Status reports the first status code written, or 200 when the handler
// finished without writing one.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}
