// utilitários pequenos para os valores de header e o corpo das rejeições.

package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatRetryAfter arredonda para cima: 400ms vira "1", nunca "0" quando há espera.
func formatRetryAfter(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

// rejection é o corpo JSON das respostas negadas pelo gate.
type rejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeRejection(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rejection{Success: false, Message: message})
}
