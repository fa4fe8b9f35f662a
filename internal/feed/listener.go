package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"wedding-site/internal/database"
)

// session holds one LISTEN connection open, calling ready once the channel
// is subscribed, until the connection fails or ctx is done.
type session func(ctx context.Context, out chan<- ChangeEvent, ready func() error) error

// Listener receives feed change notifications from Postgres.
type Listener struct {
	dsn        string
	channel    string
	session    session
	newBackOff func() backoff.BackOff
	log        zerolog.Logger
}

// NewListener creates a listener for the feed change channel
func NewListener(dsn string, log zerolog.Logger) *Listener {
	l := &Listener{
		dsn:        dsn,
		channel:    database.ChangeChannel,
		newBackOff: reconnectBackOff,
		log:        log.With().Str("component", "FeedListener").Logger(),
	}
	l.session = l.listen
	return l
}

func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	return b
}

// DecodeChange parses a notification payload.
func DecodeChange(payload string) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to decode change: %w", err)
	}
	if ev.Table == "" {
		return ChangeEvent{}, errors.New("change without table")
	}
	return ev, nil
}

// Listen forwards notifications to out until ctx is done or the connection
// fails.
func (l *Listener) Listen(ctx context.Context, out chan<- ChangeEvent) error {
	return l.listen(ctx, out, nil)
}

func (l *Listener) listen(ctx context.Context, out chan<- ChangeEvent, ready func() error) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}
	l.log.Info().Str("channel", l.channel).Msg("Listening for feed changes")

	if ready != nil {
		if err := ready(); err != nil {
			return err
		}
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}

		ev, err := DecodeChange(n.Payload)
		if err != nil {
			l.log.Warn().Err(err).Msg("Skipping malformed change")
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run keeps listening across connection failures and closes out when ctx
// is done. Every subscription, the first included, emits a posts and a
// stories change so that anything written before LISTEN took effect is
// refetched. The retry delay starts over after each successful subscribe.
func (l *Listener) Run(ctx context.Context, out chan<- ChangeEvent) {
	defer close(out)

	b := l.newBackOff()
	for {
		err := l.session(ctx, out, func() error {
			b.Reset()
			return resync(ctx, out)
		})
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		l.log.Warn().Err(err).Dur("retry_in", wait).Msg("Feed listener disconnected")

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

func resync(ctx context.Context, out chan<- ChangeEvent) error {
	for _, table := range []string{"posts", "stories"} {
		select {
		case out <- ChangeEvent{Table: table, Op: OpUpdate}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
