package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultRequestTimeoutSeconds = 30
	DefaultMaxConcurrentQueries  = 16
	DefaultRowCap                = 500
	DefaultSnapshotMaxTables     = 40
	DefaultSnapshotMaxColumns    = 120

	DefaultPoolMaxOpenConns = 8
	DefaultPoolMaxIdleConns = 2

	DefaultModel = "claude-sonnet-4-6"
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}
