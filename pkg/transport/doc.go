// Package transport defines the duplex frame connection used by the engine
// and provides implementations per link kind (ws, tcp, quic, winpipe, mem).
//
// Key concepts:
// - Transport: dials/listens for Conns of a specific Kind
// - Conn: one ordered, reliable, bidirectional stream of opaque frames
// - Registry: the set of live inbound Conns held by a listening peer
package transport
