package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	URL                  string // base URL of the race simulator (ws:// or http://)
	SessionID            string // session id to use (a random one is generated if empty)
	PlayerName           string // name of the player
	TotalLaps            int    // number of laps to race
	RainLap              int    // lap on which rain starts (0: server decides)
	SafetyCarLap         int    // lap on which the safety car is deployed (0: server decides)
	ReconnectInterval    string // duration between reconnect attempts
	MaxReconnectAttempts int    // max number of reconnect attempts before giving up
	HandshakeTimeout     string // timeout for the websocket handshake
	DecisionTimeout      string // duration after which the default strategy is chosen
	StrategyIndex        int    // index of the recommended strategy to choose
	Circuit              string // name of a built-in circuit
	CircuitFile          string // path to a yaml circuit definition (overrides Circuit)
	WaitForServices      string // duration to wait for the simulator to be reachable
	LogLevel             string // sets the log level (zap log level values)
	LogFormat            string // text vs json
	LogFilter            string // zapfilter rules, empty means no filtering
	EnableTelemetry      bool   // enable telemetry
	TelemetryEndpoint    string // endpoint for telemetry ("stdout" prints metrics)
	NatsURL              string // if set, session snapshots are mirrored to this NATS server
	NatsKV               bool   // keep the latest snapshot per session in a JetStream bucket
	ProfilingPort        int    // port for pprof data (0: disabled)
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintPositions bool // if true, car positions on the track are printed on each lap
}
