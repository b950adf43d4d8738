package billing

import (
	"encoding/json"
	"net/http"
)

// response renders itself to an http.ResponseWriter.
type response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

type textResponse struct {
	status int
	body   string
}

func (t textResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(t.status)
	_, err := w.Write([]byte(t.body))
	return err
}

type errorBody struct {
	Error string `json:"error"`
}

func jsonError(status int, msg string) response {
	return jsonResponse{status: status, body: errorBody{Error: msg}}
}

func methodNotAllowedJSON(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	_ = jsonError(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)).Render(w, r)
}

func methodNotAllowedText(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	_ = textResponse{status: http.StatusMethodNotAllowed, body: http.StatusText(http.StatusMethodNotAllowed)}.Render(w, r)
}

// TooManyRequests renders a rate-limited checkout call in the endpoint's JSON error shape.
var TooManyRequests http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_ = jsonError(http.StatusTooManyRequests, "too many checkout attempts, retry later").Render(w, r)
})
