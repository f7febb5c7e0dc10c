package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"muxlink/pkg/protocol"
)

// AnyType subscribes a handler to every non-control message.
const AnyType = "*"

// Handler consumes inbound messages of one type.
type Handler interface {
	HandleMessage(ctx context.Context, msg *protocol.Inbound) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *protocol.Inbound) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *protocol.Inbound) error {
	return f(ctx, msg)
}

// Subscription identifies one registered handler.
type Subscription struct {
	msgType string
	id      uint64
}

type handlerEntry struct {
	id uint64
	h  Handler
}

type handlerSet struct {
	mu     sync.RWMutex
	next   uint64
	byType map[string][]handlerEntry
	log    *zap.Logger
}

func newHandlerSet(log *zap.Logger) *handlerSet {
	return &handlerSet{byType: make(map[string][]handlerEntry), log: log}
}

func (s *handlerSet) add(msgType string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.byType[msgType] = append(s.byType[msgType], handlerEntry{id: s.next, h: h})
	return Subscription{msgType: msgType, id: s.next}
}

func (s *handlerSet) remove(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := s.byType[sub.msgType]
	for i, e := range hs {
		if e.id != sub.id {
			continue
		}
		out := make([]handlerEntry, 0, len(hs)-1)
		out = append(out, hs[:i]...)
		out = append(out, hs[i+1:]...)
		if len(out) == 0 {
			delete(s.byType, sub.msgType)
		} else {
			s.byType[sub.msgType] = out
		}
		return true
	}
	return false
}

func (s *handlerSet) lookup(msgType string) []handlerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exact, wild := s.byType[msgType], s.byType[AnyType]
	if len(wild) == 0 {
		return exact
	}
	out := make([]handlerEntry, 0, len(exact)+len(wild))
	out = append(out, exact...)
	return append(out, wild...)
}

// dispatch runs every handler for msg and returns once all of them have.
// Handlers run concurrently when there is more than one.
func (s *handlerSet) dispatch(ctx context.Context, msg *protocol.Inbound) {
	hs := s.lookup(msg.Type)
	switch len(hs) {
	case 0:
		s.log.Debug("no handler", zap.String("type", msg.Type), zap.String("id", msg.ID))
		return
	case 1:
		s.invoke(ctx, hs[0], msg)
		return
	}
	var wg sync.WaitGroup
	for _, e := range hs {
		wg.Add(1)
		go func(e handlerEntry) {
			defer wg.Done()
			s.invoke(ctx, e, msg)
		}(e)
	}
	wg.Wait()
}

func (s *handlerSet) invoke(ctx context.Context, e handlerEntry, msg *protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("message handler panicked", zap.String("type", msg.Type), zap.String("id", msg.ID), zap.Any("panic", r))
		}
	}()
	if err := e.h.HandleMessage(ctx, msg); err != nil {
		s.log.Warn("message handler failed", zap.String("type", msg.Type), zap.String("id", msg.ID), zap.Error(err))
	}
}

// mailbox is an unbounded FIFO between a connection's reader and its
// handler goroutine. put never blocks.
type mailbox struct {
	mu     sync.Mutex
	items  []*protocol.Inbound
	closed bool
	ready  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (b *mailbox) put(m *protocol.Inbound) {
	b.mu.Lock()
	b.items = append(b.items, m)
	b.mu.Unlock()
	b.wake()
}

func (b *mailbox) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

func (b *mailbox) wake() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// take blocks until a message is available. It reports false once the
// mailbox is closed and empty.
func (b *mailbox) take() (*protocol.Inbound, bool) {
	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			m := b.items[0]
			b.items[0] = nil
			b.items = b.items[1:]
			b.mu.Unlock()
			return m, true
		}
		if b.closed {
			b.mu.Unlock()
			return nil, false
		}
		b.mu.Unlock()
		<-b.ready
	}
}

// observers holds lifecycle callbacks. Events are delivered in order on a
// dedicated goroutine so callbacks may call back into the client.
type observers struct {
	mu         sync.RWMutex
	next       uint64
	connect    map[uint64]func()
	disconnect map[uint64]func(error)
	errs       map[uint64]func(error)

	events chan func()
	log    *zap.Logger
}

const observerBacklog = 1024

func newObservers(log *zap.Logger) *observers {
	return &observers{
		connect:    make(map[uint64]func()),
		disconnect: make(map[uint64]func(error)),
		errs:       make(map[uint64]func(error)),
		events:     make(chan func(), observerBacklog),
		log:        log,
	}
}

func (o *observers) run(done <-chan struct{}) {
	for {
		select {
		case ev := <-o.events:
			o.call(ev)
		case <-done:
			for {
				select {
				case ev := <-o.events:
					o.call(ev)
				default:
					return
				}
			}
		}
	}
}

func (o *observers) call(ev func()) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("observer panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	ev()
}

func (o *observers) post(ev func()) {
	select {
	case o.events <- ev:
	default:
		o.log.Warn("observer backlog full, dropping event")
	}
}

func (o *observers) addConnect(fn func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.connect[id] = fn
	return func() { o.mu.Lock(); delete(o.connect, id); o.mu.Unlock() }
}

func (o *observers) addDisconnect(fn func(error)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.disconnect[id] = fn
	return func() { o.mu.Lock(); delete(o.disconnect, id); o.mu.Unlock() }
}

func (o *observers) addError(fn func(error)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.errs[id] = fn
	return func() { o.mu.Lock(); delete(o.errs, id); o.mu.Unlock() }
}

func (o *observers) connected() {
	o.post(func() {
		o.mu.RLock()
		fns := make([]func(), 0, len(o.connect))
		for _, fn := range o.connect {
			fns = append(fns, fn)
		}
		o.mu.RUnlock()
		for _, fn := range fns {
			o.call(fn)
		}
	})
}

func (o *observers) disconnected(err error) {
	o.post(func() { o.each(o.disconnect, err) })
}

func (o *observers) failed(err error) {
	o.post(func() { o.each(o.errs, err) })
}

func (o *observers) each(m map[uint64]func(error), err error) {
	o.mu.RLock()
	fns := make([]func(error), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()
	for _, fn := range fns {
		fn := fn
		o.call(func() { fn(err) })
	}
}
