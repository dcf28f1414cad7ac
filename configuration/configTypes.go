package configuration

// TimestampConfig either display timestamps on log entries or not
type TimestampConfig struct {
	Format string `yaml:"format,omitempty"`
}

// ConsoleLogConfig entry in system.log.console
type ConsoleLogConfig struct {
	Level     string           `yaml:"level,omitempty"`
	Timestamp *TimestampConfig `yaml:"timestamp,omitempty"`
}

// LogConfig entry in system.log
type LogConfig struct {
	Console ConsoleLogConfig `yaml:"console,omitempty"`
}

// SystemConfig entry in system
type SystemConfig struct {
	Log LogConfig `yaml:"log,omitempty"`
}

// BrokerConfig fan-out behaviour of the gateway
type BrokerConfig struct {
	// QueueDepth bound of each subscriber's outbound queue.
	// When full the oldest event is dropped to make room.
	QueueDepth int `yaml:"queueDepth,omitempty"`

	// KeepAlive period in seconds granted to MQTT clients that request none
	KeepAlive int `yaml:"keepAlive,omitempty"`

	// ConnectTimeout seconds to wait for the CONNECT packet
	ConnectTimeout int `yaml:"connectTimeout,omitempty"`

	// MaxPacketSize largest inbound MQTT packet accepted
	MaxPacketSize uint32 `yaml:"maxPacketSize,omitempty"`
}

// MqttPortConfig configuration of a tcp/ws MQTT listener
type MqttPortConfig struct {
	Host string `yaml:"host,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// ListenersConfig where the gateway accepts connections
type ListenersConfig struct {
	DefaultAddr string `yaml:"defaultAddr,omitempty"`

	// HTTP address of the gateway server (SSE, hubs, health)
	HTTP string `yaml:"http,omitempty"`

	MQTT map[string]map[int]MqttPortConfig `yaml:"mqtt,omitempty"`
}

// Config system-wide config
type Config struct {
	System    SystemConfig    `yaml:"system,omitempty"`
	Broker    BrokerConfig    `yaml:"broker,omitempty"`
	Listeners ListenersConfig `yaml:"listeners,omitempty"`
}
