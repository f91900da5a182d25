package httplog

import (
	"net/http"
)

type statusRecorder struct {
	writer            http.ResponseWriter
	writeHeaderCalled bool

	StatusCode   int
	ContentType  string
	BytesWritten int64
}

var _ http.ResponseWriter = &statusRecorder{}

func (s *statusRecorder) Header() http.Header {
	return s.writer.Header()
}

func (s *statusRecorder) Write(data []byte) (int, error) {
	if !s.writeHeaderCalled {
		// Same as http.ResponseWriter: a Write without WriteHeader sends 200 OK.
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.writer.Write(data)
	s.BytesWritten += int64(n)
	return n, err
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	if s.writeHeaderCalled {
		// Superfluous calls are ignored by net/http as well, keep the status that was sent.
		s.writer.WriteHeader(statusCode)
		return
	}
	s.writeHeaderCalled = true
	s.StatusCode = statusCode
	s.ContentType = s.writer.Header().Get("Content-Type")
	s.writer.WriteHeader(statusCode)
}

// status returns the status code sent to the client, net/http sends 200 when the handler wrote nothing.
func (s *statusRecorder) status() int {
	if !s.writeHeaderCalled {
		return http.StatusOK
	}
	return s.StatusCode
}

// Unwrap implements the http.unWrapper interface (not exported). This is used for the http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.writer
}
