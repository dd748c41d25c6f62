package stream

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/network/httpx"
	"github.com/edgeviewer/edgeviewer/pkg/payload"
	"github.com/edgeviewer/edgeviewer/pkg/pipeline"
	"github.com/goccy/go-json"
)

type (
	StatusResponse struct {
		State       string          `json:"state"`
		Mode        string          `json:"mode"`
		Snapshot    uint64          `json:"snapshotSeq,omitempty"`
		Fps         float64         `json:"fps"`
		Processed   uint64          `json:"processed"`
		Failures    uint64          `json:"transformFailures"`
		Dropped     uint64          `json:"slotDropped"`
		Subscribers int             `json:"subscribers"`
		Broadcast   BroadcastStatus `json:"broadcast"`
		Stages      []StageStatus   `json:"stages"`
	}
	BroadcastStatus struct {
		Queued  int    `json:"queued"`
		Dropped uint64 `json:"dropped"`
		Skipped uint64 `json:"skipped"`
		Sent    uint64 `json:"sent"`
		Failed  uint64 `json:"failed"`
	}
	StageStatus struct {
		Name   string  `json:"name"`
		LastMs float64 `json:"lastMs"`
		AvgMs  float64 `json:"avgMs"`
		MaxMs  float64 `json:"maxMs"`
		Count  uint64  `json:"count"`
	}
	errorResponse struct {
		Error string `json:"error"`
	}
)

// Routes adds the websocket stream and the control API to the mux.
func (h *Hub) Routes(mux *httpx.Mux) *httpx.Mux {
	return mux.
		HandleFunc("/stream", h.ServeStream).
		HandleFunc("/api/freeze", h.action(payload.ActionFreeze)).
		HandleFunc("/api/retake", h.action(payload.ActionRetake)).
		HandleFunc("/api/save", h.action(payload.ActionSave)).
		HandleFunc("/api/export", h.action(payload.ActionExport)).
		HandleFunc("/api/mode", h.mode).
		HandleFunc("/api/status", h.status).
		HandleFunc("/display.jpg", h.displayJPEG)
}

func (h *Hub) action(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		if err := h.Exec(payload.Command{Type: payload.TypeCommand, Action: name}); err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, h.Status())
	}
}

func (h *Hub) mode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	cmd := payload.Command{Type: payload.TypeCommand, Action: payload.ActionMode, Mode: r.URL.Query().Get("value")}
	if err := h.Exec(cmd); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h.Status())
}

func (h *Hub) status(w http.ResponseWriter, _ *http.Request) { writeJSON(w, http.StatusOK, h.Status()) }

// Status is the pipeline status as shown by the API.
func (h *Hub) Status() StatusResponse {
	st := h.ctl.Status()
	stages := make([]StageStatus, 0, len(st.Stages))
	for _, s := range st.Stages {
		stages = append(stages, StageStatus{
			Name:   s.Name,
			LastMs: ms(s.Last),
			AvgMs:  ms(s.Avg()),
			MaxMs:  ms(s.Max),
			Count:  s.Count,
		})
	}
	return StatusResponse{
		State:       st.State,
		Mode:        st.Mode,
		Snapshot:    st.Snapshot,
		Fps:         st.Fps,
		Processed:   st.Processed,
		Failures:    st.Failures,
		Dropped:     st.Dropped,
		Subscribers: st.Broadcast.Subscribers,
		Broadcast: BroadcastStatus{
			Queued:  st.Broadcast.Queued,
			Dropped: st.Broadcast.Dropped,
			Skipped: st.Broadcast.Skipped,
			Sent:    st.Broadcast.Sent,
			Failed:  st.Broadcast.Failed,
		},
		Stages: stages,
	}
}

func (h *Hub) displayJPEG(w http.ResponseWriter, _ *http.Request) {
	if h.display == nil {
		writeError(w, http.StatusNotFound, errors.New("no display"))
		return
	}
	data, at, ok := h.display.JPEG()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no frame yet"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Timestamp", strconv.FormatInt(at.UnixMilli(), 10))
	_, _ = w.Write(data)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, payload.ErrBadCommand):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrNoFrame),
		errors.Is(err, pipeline.ErrExportInProgress):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrExportFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
