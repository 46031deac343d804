package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ryym/procfleet/internal/apierr"
	"github.com/ryym/procfleet/internal/logrecord"
	"github.com/ryym/procfleet/internal/supervisor"
)

type createRequest struct {
	Name    string   `json:"name"`
	Command []string `json:"command"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	procs := s.reg.List()
	descriptors := make([]supervisor.Descriptor, 0, len(procs))
	for _, p := range procs {
		descriptors = append(descriptors, p.Descriptor())
	}
	writeJSON(w, http.StatusOK, descriptors)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Validationf("invalid request body: %v", err))
		return
	}

	start := true
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, apierr.Validationf("invalid start query parameter: %v", err))
			return
		}
		start = parsed
	}

	sv, err := s.reg.Insert(req.Name, req.Command)
	if err != nil {
		writeError(w, err)
		return
	}

	if start {
		if err := sv.Start(); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sv.Descriptor())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv.Descriptor())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sv.Start(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv.Descriptor())
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, apierr.Validationf("failed to read request body: %v", err))
		return
	}

	if err := sv.Write(string(body)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	n, includeStderr, err := parseTailParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := sv.Tail(n, includeStderr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTailText(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	n, includeStderr, err := parseTailParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	prefixTimestamp := true
	if v := r.URL.Query().Get("prefix_timestamp"); v != "" {
		parsed, perr := strconv.ParseBool(v)
		if perr != nil {
			writeError(w, apierr.Validationf("invalid prefix_timestamp query parameter: %v", perr))
			return
		}
		prefixTimestamp = parsed
	}

	records, err := sv.Tail(n, includeStderr)
	if err != nil {
		writeError(w, err)
		return
	}

	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = formatTailLine(rec, prefixTimestamp)
	}
	writeJSON(w, http.StatusOK, lines)
}

func formatTailLine(rec logrecord.Record, prefixTimestamp bool) string {
	if !prefixTimestamp {
		return rec.Text
	}
	return fmt.Sprintf("%s | %s", rec.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"), rec.Text)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	kill, err := parseBoolParam(r, "kill", false)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := sv.Stop(kill); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv.Descriptor())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sv, err := s.resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}

	killExisting, err := parseBoolParam(r, "kill_existing", false)
	if err != nil {
		writeError(w, err)
		return
	}
	clearLogs, err := parseBoolParam(r, "clear_logs", false)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := sv.Restart(killExisting, clearLogs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv.Descriptor())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.reg.Delete(name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolve looks up the supervisor named by the {name} URL parameter.
func (s *Server) resolve(r *http.Request) (*supervisor.Supervisor, error) {
	name := chi.URLParam(r, "name")
	return s.reg.Get(name)
}

func parseTailParams(r *http.Request) (n int, includeStderr bool, err error) {
	nStr := r.URL.Query().Get("n")
	n, convErr := strconv.Atoi(nStr)
	if convErr != nil {
		return 0, false, apierr.Validationf("invalid n query parameter: %v", convErr)
	}
	includeStderr, err = parseBoolParam(r, "include_stderr", true)
	if err != nil {
		return 0, false, err
	}
	return n, includeStderr, nil
}

func parseBoolParam(r *http.Request, key string, fallback bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, apierr.Validationf("invalid %s query parameter: %v", key, err)
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status code and writes a JSON
// body of the form {"error": "..."}.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := err.Error()

	if apiErr, ok := apierr.As(err); ok {
		detail = apiErr.Detail
		switch apiErr.Code {
		case apierr.NotFound:
			status = http.StatusNotFound
		case apierr.Conflict:
			status = http.StatusBadRequest
		case apierr.Validation:
			status = http.StatusUnprocessableEntity
		case apierr.AuthMissing:
			status = http.StatusUnauthorized
		case apierr.AuthInvalid:
			status = http.StatusForbidden
		case apierr.Internal:
			status = http.StatusInternalServerError
		}
	}

	writeJSON(w, status, map[string]string{"error": detail})
}
