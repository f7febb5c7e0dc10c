package client

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDisconnected rejects deliveries dropped by a manual Disconnect.
	ErrDisconnected = errors.New("muxlink: disconnected")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("muxlink: client closed")
	// ErrReservedType rejects sends using a type the engine owns.
	ErrReservedType = errors.New("muxlink: reserved message type")
)

// TransportError wraps a dial, read or write failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// SerializationError is a payload or frame the codec could not handle.
type SerializationError struct {
	Type string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %q: %v", e.Type, e.Err)
}
func (e *SerializationError) Unwrap() error { return e.Err }

// AckTimeoutError is reported once a message has used up its retries.
type AckTimeoutError struct {
	ID      string
	Type    string
	Retries int
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("ack timeout for %s (%s) after %d retries", e.ID, e.Type, e.Retries)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *AckTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ReconnectExhaustedError is reported when the client gives up and enters
// the failed state.
type ReconnectExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ReconnectExhaustedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("reconnect gave up after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("reconnect gave up after %d attempts: %v", e.Attempts, e.Err)
}
func (e *ReconnectExhaustedError) Unwrap() error { return e.Err }

// CompressionWorkerError means a frame went out uncompressed because the
// worker pool failed or timed out.
type CompressionWorkerError struct {
	Err error
}

func (e *CompressionWorkerError) Error() string { return "compression worker: " + e.Err.Error() }
func (e *CompressionWorkerError) Unwrap() error { return e.Err }
