package httpapi

// StatusResponse acknowledges a stored reading
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries the failure message for 4xx/5xx responses
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports whether both ingress paths are up
type HealthResponse struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Store         string `json:"store"`
}

const (
	StatusSuccess  = "success"
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)
