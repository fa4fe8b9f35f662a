package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingBackOff struct {
	resets int
	waits  int
}

func (b *countingBackOff) NextBackOff() time.Duration {
	b.waits++
	return time.Millisecond
}

func (b *countingBackOff) Reset() { b.resets++ }

func runListener(t *testing.T, want int, steps ...func(ctx context.Context, ready func() error) error) ([]ChangeEvent, *countingBackOff, int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := &countingBackOff{}
	attempts := 0
	l := NewListener("", zerolog.Nop())
	l.newBackOff = func() backoff.BackOff { return b }
	l.session = func(ctx context.Context, out chan<- ChangeEvent, ready func() error) error {
		step := steps[min(attempts, len(steps)-1)]
		attempts++
		return step(ctx, ready)
	}

	out := make(chan ChangeEvent)
	go l.Run(ctx, out)

	var got []ChangeEvent
	for ev := range out {
		got = append(got, ev)
		if len(got) == want {
			cancel()
		}
	}
	return got, b, attempts
}

func held(ctx context.Context, ready func() error) error {
	if err := ready(); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestListenerRun_ResyncsOnFirstSubscribe(t *testing.T) {
	events, b, attempts := runListener(t, 2, held)

	assert.Equal(t, []ChangeEvent{
		{Table: "posts", Op: OpUpdate},
		{Table: "stories", Op: OpUpdate},
	}, events)
	assert.Equal(t, 1, attempts)
	assert.Zero(t, b.waits)
}

func TestListenerRun_ResetsDelayAfterSubscribe(t *testing.T) {
	refused := func(ctx context.Context, ready func() error) error {
		return errors.New("connection refused")
	}
	dropped := func(ctx context.Context, ready func() error) error {
		if err := ready(); err != nil {
			return err
		}
		return errors.New("connection reset")
	}

	events, b, attempts := runListener(t, 4, refused, refused, dropped, held)

	assert.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, []string{"posts", "stories"}[i%2], ev.Table)
	}
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 2, b.resets)
	assert.Equal(t, 3, b.waits)
}
