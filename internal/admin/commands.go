package admin

// Request is one admin frame: a tagged union on Command, with
// per-command fields left zero-valued when unused (spec §4.10). The
// envelope is struct-tag validated with go-playground/validator, the
// same library the REST listener's binding tags exercise, since an
// admin frame arrives over a raw socket with no Gin binding layer to
// run it automatically.
type Request struct {
	Command string `json:"command" validate:"required,oneof=Status GetMetrics GetConnections GetProtocols SetLogLevel ReloadConfig ReloadProtocols TestProtocol KillConnection GetLogs Shutdown"`

	Protocol string `json:"protocol,omitempty"` // TestProtocol
	Level    string `json:"level,omitempty"`    // SetLogLevel
	ConnID   string `json:"connection_id,omitempty"`
	Lines    int    `json:"lines,omitempty"` // GetLogs

	// ReloadConfig carries an inline replacement transactions.yaml
	// document; a zero-length value means "re-read from the configured path".
	TransactionsYAML []byte `json:"transactions_yaml,omitempty"`
}

// Response is the admin frame returned for every command. Fields are
// populated per-command; Ok/Error are always meaningful.
type Response struct {
	Ok      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	Status      *StatusInfo       `json:"status,omitempty"`
	Metrics     string            `json:"metrics,omitempty"` // Prometheus text exposition
	Connections []ConnectionInfo  `json:"connections,omitempty"`
	Protocols   []ProtocolInfo    `json:"protocols,omitempty"`
	ProbeResult *ProbeResult      `json:"probe_result,omitempty"`
	Logs        []string          `json:"logs,omitempty"`
	Details     map[string]string `json:"details,omitempty"` // per-plugin ReloadProtocols status
}

// StatusInfo answers the Status command.
type StatusInfo struct {
	Running     bool     `json:"running"`
	UptimeS     float64  `json:"uptime_s"`
	Connections int      `json:"connections"`
	Protocols   []string `json:"protocols"`
}

// ConnectionInfo is one row of GetConnections.
type ConnectionInfo struct {
	ID          string `json:"id"`
	Protocol    string `json:"protocol"`
	RemoteAddr  string `json:"remote_addr"`
	ConnectedAt string `json:"connected_at"`
}

// ProtocolInfo is one row of GetProtocols.
type ProtocolInfo struct {
	Name          string `json:"name"`
	BreakerState  string `json:"breaker_state,omitempty"`
	TransactionID string `json:"-"`
}

// ProbeResult answers TestProtocol.
type ProbeResult struct {
	Passed          bool  `json:"passed"`
	ExecutionTimeMS int64 `json:"execution_time_ms"`
}

const (
	CmdStatus          = "Status"
	CmdGetMetrics      = "GetMetrics"
	CmdGetConnections  = "GetConnections"
	CmdGetProtocols    = "GetProtocols"
	CmdSetLogLevel     = "SetLogLevel"
	CmdReloadConfig    = "ReloadConfig"
	CmdReloadProtocols = "ReloadProtocols"
	CmdTestProtocol    = "TestProtocol"
	CmdKillConnection  = "KillConnection"
	CmdGetLogs         = "GetLogs"
	CmdShutdown        = "Shutdown"
)
