package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/model"
	"github.com/dukerupert/mailbeforecart/internal/recovery"
)

// AdminHandler serves the operator console API.
type AdminHandler struct {
	svc    *recovery.Service
	now    func() time.Time
	logger *slog.Logger
}

func NewAdminHandler(svc *recovery.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, now: time.Now, logger: logger.With("component", "admin")}
}

func filterFromQuery(r *http.Request) (model.Filter, error) {
	q := r.URL.Query()
	return recovery.ParseFilter(q.Get("status"), q.Get("date_from"), q.Get("date_to"))
}

func (h *AdminHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, h.logger, "invalid filter", err)
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page"})
			return
		}
	}

	result, err := h.svc.ListEntries(r.Context(), f, page)
	if err != nil {
		writeError(w, h.logger, "failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// startWriter records whether anything reached the client.
type startWriter struct {
	http.ResponseWriter
	started bool
}

func (sw *startWriter) Write(b []byte) (int, error) {
	sw.started = true
	return sw.ResponseWriter.Write(b)
}

func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, h.logger, "invalid filter", err)
		return
	}

	sw := &startWriter{ResponseWriter: w}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+recovery.ExportFilename(f, h.now())+`"`)

	n, err := h.svc.ExportCSV(r.Context(), f, sw)
	if err != nil {
		if !sw.started {
			w.Header().Del("Content-Disposition")
			writeError(w, h.logger, "failed to export entries", err)
			return
		}
		h.logger.Error("export interrupted", "rows", n, "error", err)
		return
	}
	h.logger.Info("entries exported", "rows", n)
}

func (h *AdminHandler) Remind(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	rec, err := h.svc.SendManualReminder(r.Context(), id, r.Header.Get(CSRFHeader))
	if err != nil {
		writeError(w, h.logger, "failed to send reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	history, err := h.svc.EntryHistory(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "failed to load dispatch history", err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *AdminHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearAllStatistics(r.Context(), r.Header.Get(CSRFHeader))
	if err != nil {
		writeError(w, h.logger, "failed to clear entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Settings(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// UpdateSettings applies the fields present in the body over the current
// settings.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	rs, err := h.svc.Settings(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to get settings", err)
		return
	}
	if err := decodeJSON(w, r, &rs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := h.svc.UpdateSettings(r.Context(), rs, r.Header.Get(CSRFHeader)); err != nil {
		writeError(w, h.logger, "failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *AdminHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.SchedulerStatus())
}

func (h *AdminHandler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunCycleNow(r.Context(), r.Header.Get(CSRFHeader))
	if err != nil {
		writeError(w, h.logger, "reminder cycle failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) ResetScheduler(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.ResetSchedule(r.Context(), r.Header.Get(CSRFHeader))
	if err != nil {
		writeError(w, h.logger, "failed to reset schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"next_run": next})
}
