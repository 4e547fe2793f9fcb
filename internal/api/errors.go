package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Detail     any    `json:"detail"`
	StatusCode int    `json:"status_code"`
	Path       string `json:"path"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, detail any) {
	writeJSON(w, status, ErrorResponse{
		Detail:     detail,
		StatusCode: status,
		Path:       r.URL.Path,
	})
}

func writeValidation(w http.ResponseWriter, r *http.Request, errs []FieldError) {
	writeError(w, r, http.StatusUnprocessableEntity, errs)
}

func fieldError(loc, field, msg string) FieldError {
	return FieldError{Loc: []string{loc, field}, Msg: msg, Type: "value_error"}
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, r, http.StatusUnauthorized, "Could not validate credentials")
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
}

// decode reads a JSON body into v, writing a 422 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeValidation(w, r, []FieldError{{Loc: []string{"body"}, Msg: "invalid JSON body: " + err.Error(), Type: "json_invalid"}})
		return false
	}
	return true
}
