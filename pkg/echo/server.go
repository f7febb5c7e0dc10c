// Package echo is a reference peer for the client engine. It acknowledges
// flagged messages, answers pings and optionally reflects application
// messages back to the sender. It is used by the muxlink-echo command and
// by the engine tests.
package echo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"muxlink/pkg/compress"
	"muxlink/pkg/protocol"
	"muxlink/pkg/protocol/codec"
	"muxlink/pkg/transport"
	"muxlink/pkg/transports"
)

// Options control how the peer answers.
type Options struct {
	// Codec defaults to JSON.
	Codec codec.Codec
	Echo  bool
	Acks  bool
	Pongs bool
	Log   *zap.Logger
	// Observe sees every received frame, as it arrived and decoded, before
	// any reply is written.
	Observe func(raw []byte, msgs []*protocol.Inbound)
}

// Server answers client engines on any number of listeners.
type Server struct {
	opts  Options
	conns *transport.Registry
}

func New(opts Options) *Server {
	if opts.Codec == nil {
		opts.Codec = codec.JSON()
	}
	if opts.Log == nil {
		opts.Log = zap.L()
	}
	return &Server{opts: opts, conns: transport.NewRegistry()}
}

// Serve accepts connections from l until ctx ends or l is closed.
func (s *Server) Serve(ctx context.Context, l transport.Listener) error {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.opts.Log.Info("inbound connection", zap.Stringer("kind", conn.Kind()), zap.Stringer("raddr", conn.RemoteAddr()))
		go s.ServeConn(ctx, conn)
	}
}

// ServeConn answers frames on conn until it fails or ctx ends.
func (s *Server) ServeConn(ctx context.Context, conn transport.Conn) {
	id := s.conns.Add(conn)
	defer s.conns.Remove(id)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := s.opts.Log.With(zap.String("conn", id))
	for {
		raw, err := conn.RecvBytes()
		if err != nil {
			log.Debug("connection closed", zap.Error(err))
			return
		}
		data, err := compress.Decode(raw)
		if err != nil {
			log.Warn("bad compressed frame", zap.Error(err))
			continue
		}
		msgs, err := protocol.DecodeFrame(s.opts.Codec, data)
		if err != nil {
			log.Warn("bad frame", zap.Error(err))
			continue
		}
		if s.opts.Observe != nil {
			s.opts.Observe(raw, msgs)
		}
		for _, m := range msgs {
			for _, f := range s.replies(m) {
				if err := s.write(conn, f); err != nil {
					log.Debug("reply failed", zap.String("type", f.Type), zap.Error(err))
					return
				}
			}
		}
	}
}

func (s *Server) replies(m *protocol.Inbound) []protocol.Frame {
	now := time.Now()
	var out []protocol.Frame
	switch m.Type {
	case protocol.TypePing:
		if s.opts.Pongs {
			if f, err := protocol.NewControlFrame(s.opts.Codec, protocol.TypePong, protocol.Control{SentAt: m.Control().SentAt}, now); err == nil {
				out = append(out, f)
			}
		}
	case protocol.TypePong, protocol.TypeAck:
	default:
		if s.opts.Acks && m.AckRequested {
			if f, err := protocol.NewControlFrame(s.opts.Codec, protocol.TypeAck, protocol.Control{Ack: m.ID}, now); err == nil {
				out = append(out, f)
			}
		}
		if s.opts.Echo {
			out = append(out, protocol.Frame{ID: uuid.NewString(), Type: m.Type, Payload: m.Payload, Timestamp: now.UnixMilli()})
		}
	}
	return out
}

func (s *Server) write(conn transport.Conn, f protocol.Frame) error {
	b, err := protocol.EncodeFrame(s.opts.Codec, f)
	if err != nil {
		return err
	}
	return conn.SendBytes(b)
}

// Conns is the number of live connections.
func (s *Server) Conns() int { return s.conns.Len() }

// DropAll closes every live connection, as a network failure would.
func (s *Server) DropAll() int { return s.conns.CloseAll() }

// ErrNoListeners is returned by ListenAndServe without endpoints.
var ErrNoListeners = errors.New("echo: no listen endpoints")

// ListenAndServe listens on every endpoint URL and serves until ctx ends
// or a listener fails.
func (s *Server) ListenAndServe(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return ErrNoListeners
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, len(urls))
	var wg sync.WaitGroup
	for _, u := range urls {
		tr, addr, err := transports.ForURL(u)
		if err != nil {
			return err
		}
		l, err := tr.Listen(ctx, addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", u, err)
		}
		s.opts.Log.Info("listening", zap.Stringer("kind", tr.Kind()), zap.String("addr", l.Addr().String()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.Close()
			errc <- s.Serve(ctx, l)
		}()
	}
	var first error
	select {
	case <-ctx.Done():
	case first = <-errc:
		cancel()
	}
	wg.Wait()
	s.DropAll()
	return first
}
