package daemon

// StartOptions configures the dashboard daemon.
type StartOptions struct {
	AgentDir   string
	PlanDir    string
	Port       int
	Dev        bool
	APIKey     string
	EnableOtel bool // OpenTelemetry metrics via the Prometheus exporter
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Addr    string `json:"addr,omitempty"`
}
