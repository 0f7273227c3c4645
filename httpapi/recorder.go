package httpapi

import (
	"bytes"
	"net/http"
	"sync"
)

// recorder buffers a handler's response so it can be relayed, or dropped in
// favor of an error envelope, once the Orchestrator has decided.
type recorder struct {
	header http.Header

	mu     sync.Mutex
	status int
	body   bytes.Buffer
	closed bool
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header)}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.closed {
		return 0, http.ErrHandlerTimeout
	}
	return r.body.Write(p)
}

// Status returns the recorded status, 200 when none was written.
func (r *recorder) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// close stops accepting writes from a handler that outlived its timeout.
func (r *recorder) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// relay copies the buffered response to w. extra is applied after the
// handler's headers.
func (r *recorder) relay(w http.ResponseWriter, extra func(http.Header)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := w.Header()
	for k, v := range r.header {
		dst[k] = v
	}
	if extra != nil {
		extra(dst)
	}

	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(r.body.Bytes())
	r.closed = true
}
