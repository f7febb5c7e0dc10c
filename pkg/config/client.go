package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig contains the transport engine tuning options.
// Durations are expressed in milliseconds.
type ClientConfig struct {
	URL string `mapstructure:"url"`

	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts"`
	ReconnectIntervalMS  int `mapstructure:"reconnect_interval_ms"`
	MaxReconnectDelayMS  int `mapstructure:"max_reconnect_delay_ms"`
	ReconnectJitterMS    int `mapstructure:"reconnect_jitter_ms"`
	DialTimeoutMS        int `mapstructure:"dial_timeout_ms"`
	WriteTimeoutMS       int `mapstructure:"write_timeout_ms"`

	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms"`

	BatchSize      int `mapstructure:"batch_size"`
	BatchTimeoutMS int `mapstructure:"batch_timeout_ms"`
	MaxMessageSize int `mapstructure:"max_message_size"`

	EnableCompression    bool `mapstructure:"enable_compression"`
	CompressionThreshold int  `mapstructure:"compression_threshold"`
	CompressionTimeoutMS int  `mapstructure:"compression_timeout_ms"`
	CompressionWorkers   int  `mapstructure:"compression_workers"`

	// PriorityQueues disables lane separation when false; messages keep their priority value.
	PriorityQueues bool `mapstructure:"priority_queues"`

	AckTimeoutMS     int `mapstructure:"ack_timeout_ms"`
	MaxRetries       int `mapstructure:"max_retries"`
	RetryBaseDelayMS int `mapstructure:"retry_base_delay_ms"`
	RetryJitterMS    int `mapstructure:"retry_jitter_ms"`

	// WireCodec is json or cbor.
	WireCodec string `mapstructure:"wire_codec"`

	// DedupeWindowMS of 0 disables inbound duplicate suppression.
	DedupeWindowMS int `mapstructure:"dedupe_window_ms"`
	DedupeSize     int `mapstructure:"dedupe_size"`

	// EgressBytesPerSec of 0 disables egress shaping.
	EgressBytesPerSec int64 `mapstructure:"egress_bytes_per_sec"`
}

// DefaultClient returns the engine defaults.
func DefaultClient() ClientConfig {
	return ClientConfig{
		URL:                  "ws://127.0.0.1:8080/ws",
		MaxReconnectAttempts: 5,
		ReconnectIntervalMS:  1000,
		MaxReconnectDelayMS:  30000,
		ReconnectJitterMS:    1000,
		DialTimeoutMS:        10000,
		WriteTimeoutMS:       10000,
		HeartbeatIntervalMS:  30000,
		BatchSize:            10,
		BatchTimeoutMS:       50,
		MaxMessageSize:       1 << 20,
		EnableCompression:    true,
		CompressionThreshold: 1024,
		CompressionTimeoutMS: 1000,
		CompressionWorkers:   2,
		PriorityQueues:       true,
		AckTimeoutMS:         5000,
		MaxRetries:           3,
		RetryBaseDelayMS:     1000,
		WireCodec:            "json",
		DedupeWindowMS:       60000,
		DedupeSize:           4096,
	}
}

func seedClientDefaults(v *viper.Viper, prefix string, c ClientConfig) {
	set := func(k string, val any) { v.SetDefault(prefix+"."+k, val) }
	set("url", c.URL)
	set("max_reconnect_attempts", c.MaxReconnectAttempts)
	set("reconnect_interval_ms", c.ReconnectIntervalMS)
	set("max_reconnect_delay_ms", c.MaxReconnectDelayMS)
	set("reconnect_jitter_ms", c.ReconnectJitterMS)
	set("dial_timeout_ms", c.DialTimeoutMS)
	set("write_timeout_ms", c.WriteTimeoutMS)
	set("heartbeat_interval_ms", c.HeartbeatIntervalMS)
	set("batch_size", c.BatchSize)
	set("batch_timeout_ms", c.BatchTimeoutMS)
	set("max_message_size", c.MaxMessageSize)
	set("enable_compression", c.EnableCompression)
	set("compression_threshold", c.CompressionThreshold)
	set("compression_timeout_ms", c.CompressionTimeoutMS)
	set("compression_workers", c.CompressionWorkers)
	set("priority_queues", c.PriorityQueues)
	set("ack_timeout_ms", c.AckTimeoutMS)
	set("max_retries", c.MaxRetries)
	set("retry_base_delay_ms", c.RetryBaseDelayMS)
	set("retry_jitter_ms", c.RetryJitterMS)
	set("wire_codec", c.WireCodec)
	set("dedupe_window_ms", c.DedupeWindowMS)
	set("dedupe_size", c.DedupeSize)
	set("egress_bytes_per_sec", c.EgressBytesPerSec)
}

// Validate normalizes the codec name and rejects values the engine cannot run with.
func (c *ClientConfig) Validate() error {
	c.WireCodec = strings.ToLower(strings.TrimSpace(c.WireCodec))
	if c.WireCodec == "" {
		c.WireCodec = "json"
	}
	switch c.WireCodec {
	case "json", "cbor":
	default:
		return fmt.Errorf("invalid client.wire_codec: %q", c.WireCodec)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid client.batch_size: %d", c.BatchSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid client.max_message_size: %d", c.MaxMessageSize)
	}
	if c.MaxReconnectAttempts < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("client: negative attempts/retries")
	}
	if c.BatchTimeoutMS <= 0 || c.HeartbeatIntervalMS <= 0 || c.AckTimeoutMS <= 0 {
		return fmt.Errorf("client: timeouts and intervals must be positive")
	}
	if c.CompressionWorkers <= 0 {
		c.CompressionWorkers = 1
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c ClientConfig) ReconnectInterval() time.Duration { return ms(c.ReconnectIntervalMS) }
func (c ClientConfig) MaxReconnectDelay() time.Duration { return ms(c.MaxReconnectDelayMS) }
func (c ClientConfig) ReconnectJitter() time.Duration   { return ms(c.ReconnectJitterMS) }
func (c ClientConfig) DialTimeout() time.Duration       { return ms(c.DialTimeoutMS) }
func (c ClientConfig) WriteTimeout() time.Duration      { return ms(c.WriteTimeoutMS) }
func (c ClientConfig) HeartbeatInterval() time.Duration { return ms(c.HeartbeatIntervalMS) }
func (c ClientConfig) BatchTimeout() time.Duration      { return ms(c.BatchTimeoutMS) }
func (c ClientConfig) CompressionTimeout() time.Duration {
	return ms(c.CompressionTimeoutMS)
}
func (c ClientConfig) AckTimeout() time.Duration     { return ms(c.AckTimeoutMS) }
func (c ClientConfig) RetryBaseDelay() time.Duration { return ms(c.RetryBaseDelayMS) }
func (c ClientConfig) RetryJitter() time.Duration    { return ms(c.RetryJitterMS) }
func (c ClientConfig) DedupeWindow() time.Duration   { return ms(c.DedupeWindowMS) }
