package config

type Config interface {
	Transport() string
	Pattern() string
	InboundEndpoint() string
	OutboundEndpoint() string
	NATSURL() string
	AssetDir() string
	LockTrueLabel() string
	LockFalseLabel() string
	HandlerErrorPolicy() string
	ClockSchedule() string
	RedisAddr() string
	HTTPListen() string
	CORSOrigins() []string

	SetLockLabels(trueLabel, falseLabel string)
	SetHandlerErrorPolicy(string)
	SetClockSchedule(string)

	// Validate reports the first invalid setting.
	Validate() error
	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
