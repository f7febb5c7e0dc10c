package main

import (
	"flag"
	"time"
)

// Options holds CLI options for the client.
type Options struct {
	ConfigPath string
	URL        string
	Type       string
	Payload    string
	Count      int
	Priority   string
	Ack        bool
	Retries    uint
	Timeout    time.Duration
	Listen     time.Duration
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("muxlink-client", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.URL, "url", "", "Endpoint URL, overrides client.url")
	fs.StringVar(&opts.Type, "type", "message", "Message type")
	fs.StringVar(&opts.Payload, "payload", `{"text":"hello"}`, "JSON payload")
	fs.IntVar(&opts.Count, "count", 1, "Number of messages to send")
	fs.StringVar(&opts.Priority, "priority", "medium", "critical|high|medium|low")
	fs.BoolVar(&opts.Ack, "ack", false, "Request an acknowledgement for every message")
	fs.UintVar(&opts.Retries, "connect-retries", 3, "Connect attempts before giving up")
	fs.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Overall timeout")
	fs.DurationVar(&opts.Listen, "listen", 0, "Keep printing inbound messages for this long after sending")
	_ = fs.Parse(args)
	return opts
}
