package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/liaoxianfu/ai-agent/internal/httplog"
	"go.uber.org/zap"
)

type message struct {
	Message string `json:"message"`
}

// NewRouter returns the routes of the service. The router is not wrapped in
// the logging middleware, see Server.Handler.
func NewRouter(helloDelay time.Duration) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", hello(helloDelay)).Methods(http.MethodGet)
	return r
}

func hello(delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-r.Context().Done():
				t.Stop()
			}
		}

		httplog.FromContext(r.Context()).Info("hello world")
		writeJSON(r, w, http.StatusOK, message{Message: "Hello World"})
	}
}

func writeJSON(r *http.Request, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		httplog.FromContext(r.Context()).Warn("Failed to write response", zap.Error(err))
	}
}
