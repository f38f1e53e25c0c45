package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r           messageReader
	workers     int
	log         *zap.Logger
	MaxAttempts int
	Backoff     time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, lg *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, lg)
}

func newConsumer(r messageReader, workers int, lg *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Consumer{r: r, workers: workers, log: lg, MaxAttempts: 3, Backoff: 200 * time.Millisecond}
}

// Start dispatches messages to a fixed worker pool until ctx is done. A
// partition always maps to the same worker, so per-order ordering holds.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	var g errgroup.Group
	jobs := make([]chan kafka.Message, c.workers)
	for i := range jobs {
		ch := make(chan kafka.Message, 64)
		jobs[i] = ch
		g.Go(func() error {
			for m := range ch {
				c.process(ctx, h, m)
			}
			return nil
		})
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		_ = g.Wait()
	}

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	lg := c.log.With(zap.String("topic", m.Topic), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		if attempt >= c.MaxAttempts {
			// poison message: dicatat lalu di-skip supaya partition tidak macet
			lg.Error("message dropped after retries", zap.Int("attempts", attempt), zap.Error(err))
			break
		}
		lg.Warn("handler failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(c.Backoff * time.Duration(attempt)): // backoff ringan
		case <-ctx.Done():
			return
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		lg.Error("commit failed", zap.Error(err))
	}
}
