package alert

// WebhookConfig defines a webhook alert destination.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"     yaml:"url"     json:"url"`
	Format  string            `mapstructure:"format"  yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `mapstructure:"events"  yaml:"events"  json:"events"` // ["DENY", "REQUIRE_CONFIRMATION"]
	Headers map[string]string `mapstructure:"headers" yaml:"headers" json:"headers"`
}

// RedisConfig publishes events on a Redis pub/sub channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db"       yaml:"db"`
	Channel  string `mapstructure:"channel"  yaml:"channel"`
}

// KafkaConfig writes events to a Kafka topic keyed by proposal id.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	Topic   string   `mapstructure:"topic"   yaml:"topic"`
}

// Config groups every alert destination.
type Config struct {
	Webhooks []WebhookConfig `mapstructure:"webhooks" yaml:"webhooks"`
	Redis    RedisConfig     `mapstructure:"redis"    yaml:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"    yaml:"kafka"`
}

// DefaultEvents is used when a webhook does not list events.
var DefaultEvents = []string{"DENY", "REQUIRE_CONFIRMATION"}
