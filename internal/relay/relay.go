// Package relay mirrors room broadcasts onto NATS subjects for out-of-process consumers.
package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/clock"
	"github.com/bbernstein/runofshow-go/internal/protocol"
)

// Config controls the NATS connection.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "runofshow",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Relay publishes every broadcast as its wire envelope to <prefix>.events.<eventId>.<type>.
type Relay struct {
	nc     conn
	prefix string
	clock  clock.Clock
}

// Connect dials NATS and returns a Relay.
func Connect(cfg Config, clk clock.Clock) (*Relay, error) {
	opts := []nats.Option{
		nats.Name("runofshow-relay"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Str("prefix", cfg.SubjectPrefix).Msg("NATS relay connected")
	return newRelay(nc, cfg.SubjectPrefix, clk), nil
}

func newRelay(nc conn, prefix string, clk clock.Clock) *Relay {
	if clk == nil {
		clk = clock.Real()
	}
	if prefix == "" {
		prefix = "runofshow"
	}
	return &Relay{nc: nc, prefix: prefix, clock: clk}
}

// Subject returns the subject a message for eventID is published on.
func (r *Relay) Subject(eventID string, t protocol.MessageType) string {
	return fmt.Sprintf("%s.events.%s.%s", r.prefix, subjectToken(eventID), t)
}

// Publish mirrors one broadcast. Failures are logged; the room broadcast is unaffected.
func (r *Relay) Publish(eventID string, msg protocol.Message) {
	data, err := protocol.Encode(eventID, msg, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("relay failed to encode message")
		return
	}
	subject := r.Subject(eventID, msg.Type())
	if err := r.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("relay publish failed")
	}
}

// Close flushes pending messages and closes the connection.
func (r *Relay) Close() error {
	return r.nc.Drain()
}

// subjectToken makes eventID safe as a single NATS subject token.
func subjectToken(eventID string) string {
	if eventID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, eventID)
}
