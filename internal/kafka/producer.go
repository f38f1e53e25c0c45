package kafka

import (
	"context"
	"errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"sync"
	"time"
)

var (
	ErrProducerClosed = errors.New("producer closed")
	ErrBufferFull     = errors.New("producer buffer full")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages and writes them from a single goroutine, so
// Publish never blocks a request.
type Producer struct {
	w     messageWriter
	log   *zap.Logger
	inbox chan kafka.Message

	mu      sync.RWMutex
	closed  bool
	closeCh chan struct{}
}

func NewProducer(brokers []string, topic string, buf int, lg *zap.Logger) *Producer {
	if lg == nil {
		lg = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true, // fire-and-forget untuk throughput; error dicatat di Completion
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				lg.Error("kafka write failed", zap.String("topic", topic), zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
	return newProducer(w, buf, lg)
}

func newProducer(w messageWriter, buf int, lg *zap.Logger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	return &Producer{
		w:       w,
		log:     lg,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the writer loop until Close is called or ctx is done. Buffered
// messages are flushed before the writer is closed.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error("kafka publish failed", zap.ByteString("key", m.Key), zap.Error(err))
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close", zap.Error(err))
		}
	}()
}

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

func (p *Producer) Publish(_ context.Context, key, value []byte, eventType string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
			{Key: HeaderEventVersion, Value: []byte("1")},
		},
	}:
		return nil
	default:
		return ErrBufferFull
	}
}

// EventType reads the x-event-type header, "" when absent.
func EventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}

// Tutup channel supaya goroutine nge-flush sisa pesan lalu exit rapi.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
