package config

const (
	ConfigDir  = ".lantz"
	ConfigFile = "config.yaml"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultHTTPAddr  = "127.0.0.1:8042"
	DefaultStateFile = "state.db"

	DefaultRedisAddr    = "localhost:6379"
	DefaultRedisChannel = "lantz:stream"
)
