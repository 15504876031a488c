package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adamwoolhether/fetcher/web/mux"
)

// RespondJSON writes data as the JSON body with the given status and
// records the status for request logging. 204 and a nil data write no
// body. Encoding happens before the header is written, so a value that
// cannot be encoded still leaves the response free for the error
// middleware.
func RespondJSON(ctx context.Context, w http.ResponseWriter, status int, data any) error {
	mux.SetStatus(ctx, status)

	if status == http.StatusNoContent || data == nil {
		w.WriteHeader(status)
		return nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %T response: %w", data, err)
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	_, err = w.Write(append(body, '\n'))
	return err
}

// Redirect sends the client to url with a 3xx status.
func Redirect(w http.ResponseWriter, r *http.Request, url string, status int) error {
	if status < http.StatusMultipleChoices || status >= http.StatusBadRequest {
		return fmt.Errorf("redirect with non-3xx status %d", status)
	}

	mux.SetStatus(r.Context(), status)
	http.Redirect(w, r, url, status)

	return nil
}
