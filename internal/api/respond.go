package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/gigboard/gigboard/internal/platform/errors"
)

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// writeError maps domain errors onto the response taxonomy. Internal details
// never reach the client; they go to the log with the code intact.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		log.Printf("api: unclassified error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
		return
	}

	status := appErr.Code.HTTPStatus()
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		log.Printf("api: %s: %v", appErr.Code, err)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Message: message})
}
