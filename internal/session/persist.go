package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// Sink is a durable message store. The coordinator never depends on it for
// correctness; writes reach it through a Persister.
type Sink interface {
	SaveMessage(ctx context.Context, msg Message) error
	UpdateMessage(ctx context.Context, msg Message) error
	RecentMessages(ctx context.Context, limit int) ([]Message, error)
}

// Recorder receives write-behind notifications from the coordinator. Calls
// must not block.
type Recorder interface {
	Saved(msg Message)
	Updated(msg Message)
}

type nopRecorder struct{}

func (nopRecorder) Saved(Message)   {}
func (nopRecorder) Updated(Message) {}

type opKind int

const (
	opSave opKind = iota
	opUpdate
)

type persistOp struct {
	kind opKind
	msg  Message
}

// Persister is a write-behind Recorder. Operations are queued on a bounded
// channel and applied by a single worker; a full queue drops the write.
type Persister struct {
	sink      Sink
	log       zerolog.Logger
	queue     chan persistOp
	done      chan struct{}
	onFailure func()

	mu     sync.RWMutex
	closed bool
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithQueueSize overrides the queue capacity.
func WithQueueSize(n int) PersisterOption {
	return func(p *Persister) {
		if n > 0 {
			p.queue = make(chan persistOp, n)
		}
	}
}

// WithFailureHook registers fn to run after every dropped or failed write.
func WithFailureHook(fn func()) PersisterOption {
	return func(p *Persister) { p.onFailure = fn }
}

// NewPersister starts the worker. Close flushes the queue and stops it.
func NewPersister(sink Sink, log zerolog.Logger, opts ...PersisterOption) *Persister {
	p := &Persister{
		sink:      sink,
		log:       log,
		queue:     make(chan persistOp, defaultQueueSize),
		done:      make(chan struct{}),
		onFailure: func() {},
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

func (p *Persister) Saved(msg Message)   { p.enqueue(persistOp{kind: opSave, msg: msg}) }
func (p *Persister) Updated(msg Message) { p.enqueue(persistOp{kind: opUpdate, msg: msg}) }

func (p *Persister) enqueue(op persistOp) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- op:
	default:
		p.log.Warn().Str("message_id", op.msg.ID).Msg("persistence queue full, dropping write")
		p.onFailure()
	}
}

func (p *Persister) run() {
	defer close(p.done)
	for op := range p.queue {
		p.apply(op)
	}
}

func (p *Persister) apply(op persistOp) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	var err error
	switch op.kind {
	case opSave:
		err = p.sink.SaveMessage(ctx, op.msg)
	case opUpdate:
		err = p.sink.UpdateMessage(ctx, op.msg)
	}
	if err != nil {
		p.log.Error().Err(err).Str("message_id", op.msg.ID).Msg("persist message")
		p.onFailure()
	}
}

// Close stops accepting writes, drains what is queued and waits for the
// worker to exit. It is safe to call more than once.
func (p *Persister) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}
