package handlers

import (
	"encoding/json"
	"io"
	"net/http"
)

// sendSSEEvent writes one server-sent event and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = w.Write(jsonData)
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
