package compress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Compress after Close.
var ErrPoolClosed = errors.New("compress: pool closed")

type request struct {
	id   string
	data []byte
}

type response struct {
	id  string
	out []byte
	err error
}

// Pool runs Encode on a fixed set of worker goroutines. Workers publish
// results on one channel; a router hands each result to the caller waiting
// on its request id and drops results nobody waits for anymore.
type Pool struct {
	jobs      chan request
	results   chan response
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	encode    func([]byte) ([]byte, error)

	mu      sync.Mutex
	waiting map[string]chan response
}

// NewPool starts n workers (at least one).
func NewPool(n int) *Pool { return newPool(n, Encode) }

func newPool(n int, encode func([]byte) ([]byte, error)) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{
		jobs:    make(chan request, n*4),
		results: make(chan response, n),
		quit:    make(chan struct{}),
		encode:  encode,
		waiting: make(map[string]chan response),
	}
	p.wg.Add(n + 1)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	go p.route()
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case req := <-p.jobs:
			out, err := p.run(req.data)
			select {
			case p.results <- response{id: req.id, out: out, err: err}:
			case <-p.quit:
				return
			}
		}
	}
}

func (p *Pool) run(data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compress: worker panic: %v", r)
		}
	}()
	return p.encode(data)
}

func (p *Pool) route() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case res := <-p.results:
			p.mu.Lock()
			ch, ok := p.waiting[res.id]
			delete(p.waiting, res.id)
			p.mu.Unlock()
			if !ok {
				zap.L().Debug("dropping abandoned compression result", zap.String("id", res.id))
				continue
			}
			ch <- res
		}
	}
}

// Compress submits data and waits for the result or ctx expiry.
func (p *Pool) Compress(ctx context.Context, data []byte) ([]byte, error) {
	id := uuid.NewString()
	reply := make(chan response, 1)
	p.mu.Lock()
	p.waiting[id] = reply
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, id)
		p.mu.Unlock()
	}()

	select {
	case p.jobs <- request{id: id, data: data}:
	case <-p.quit:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.out, res.err
	case <-p.quit:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers. Pending callers receive ErrPoolClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
	})
}
