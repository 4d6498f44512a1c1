package httpapi

import "net/http"

type HealthHandler struct {
	mqttConnected func() bool
	store         string
}

// NewHealthHandler mqttConnected may be nil when messaging is disabled
func NewHealthHandler(mqttConnected func() bool, store string) *HealthHandler {
	return &HealthHandler{mqttConnected: mqttConnected, store: store}
}

// Health answers 200 in both states; "degraded" means MQTT ingestion is off
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	connected := h.mqttConnected != nil && h.mqttConnected()
	status := StatusOK
	if !connected {
		status = StatusDegraded
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		MQTTConnected: connected,
		Store:         h.store,
	})
}
