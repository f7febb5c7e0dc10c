package config

// EchoConfig describes the reference peer endpoints.
// Example YAML:
// echo:
//   listen: ["ws://0.0.0.0:8080/ws", "tcp://0.0.0.0:7000", "quic://0.0.0.0:4433"]
//   echo: true
//   acks: true
type EchoConfig struct {
	Listen []string `mapstructure:"listen"`
	// Echo reflects application messages back to the sender
	Echo bool `mapstructure:"echo"`
	// Acks answers messages flagged with "ack":true
	Acks bool `mapstructure:"acks"`
	// Pongs answers ping frames
	Pongs bool `mapstructure:"pongs"`
}
