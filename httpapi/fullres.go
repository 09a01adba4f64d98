package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/snapshot"
)

// handleFullRes services a single full-resolution snapshot request via
// captureFullRes (§4.5). On success it returns the JPEG bytes directly; on
// Busy or Timeout it returns 500 with a JSON error body per the Open
// Question resolution in §13.
func (s *Server) handleFullRes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var out []byte
	err := s.captureFullRes(&out)
	snapshotDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.log.Info("full_res request failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		switch {
		case errors.Is(err, snapshot.ErrBusy):
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "busy"})
		case errors.Is(err, snapshot.ErrTimeout):
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "timeout"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "snapshot failed"})
		}
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
