package sender

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/ylmrx/monyt/internal/models"
)

type EventPublisher interface {
	// Publish returns how many events, from the head of the slice, were delivered.
	Publish(ctx context.Context, events []models.FailoverEvent) (int, error)
}

func NewSenderController(
	eventCh <-chan models.FailoverEvent,
	publisher EventPublisher,
	retryTimeout time.Duration,
) *SenderControler {
	return &SenderControler{
		events:       eventCh,
		publisher:    publisher,
		retryTimeout: retryTimeout,
		unsentGuard:  &sync.Mutex{},
		unsent:       make([]models.FailoverEvent, 0),
		attempts:     3,
		retryDelay:   100 * time.Millisecond,
	}
}

type SenderControler struct {
	events       <-chan models.FailoverEvent
	retryTimeout time.Duration
	publisher    EventPublisher
	unsentGuard  *sync.Mutex
	unsent       []models.FailoverEvent
	attempts     uint
	retryDelay   time.Duration
}

// Run drains events until the channel is closed, then tries once more to
// publish what is still queued.
func (c *SenderControler) Run(ctx context.Context) {
	ttlTicker := time.NewTicker(c.retryTimeout)
	defer ttlTicker.Stop()

	for {
		select {
		case <-ttlTicker.C:
			c.sendUnsentEvents(ctx)
		case event, ok := <-c.events:
			if !ok {
				c.sendUnsentEvents(ctx)
				return
			}
			c.send(ctx, event)
		}
	}
}

func (c *SenderControler) send(ctx context.Context, event models.FailoverEvent) {
	log.Info().Msgf(
		"failover event %s: state=%s local=%s remote=%s tables=%v failed=%v",
		event.Type, event.State, event.Local, event.Remote, event.Tables, event.FailedTables,
	)
	if c.publisher == nil {
		return
	}
	err := retry.Do(
		func() error {
			_, err := c.publisher.Publish(ctx, []models.FailoverEvent{event})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to publish failover event, put it into unsent queue")
		c.unsentGuard.Lock()
		c.unsent = append(c.unsent, event)
		c.unsentGuard.Unlock()
	}
}

func (c *SenderControler) sendUnsentEvents(ctx context.Context) {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()

	if len(c.unsent) == 0 || c.publisher == nil {
		return
	}
	done, err := c.publisher.Publish(ctx, c.unsent)
	if err != nil {
		log.Warn().Err(err).Msgf("failed to publish unsent events: done %d of %d", done, len(c.unsent))

		newUnsent := make([]models.FailoverEvent, len(c.unsent)-done)
		copy(newUnsent, c.unsent[done:])
		c.unsent = newUnsent
		return
	}
	c.unsent = c.unsent[:0]
}

func (c *SenderControler) Unsent() int {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()
	return len(c.unsent)
}
