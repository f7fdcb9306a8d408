package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/discochess/movegrade"
)

type startResponse struct {
	Message string        `json:"message"`
	Started bool          `json:"started"`
	Job     movegrade.Job `json:"job"`
}

type notAnalyzedResponse struct {
	GameID string `json:"game_id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
