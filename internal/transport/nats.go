package transport

import (
	"HopSpectra/internal/config"
	"HopSpectra/internal/model"
	"log"

	"github.com/nats-io/nats.go"
)

// EventHandler processes a decoded event.
type EventHandler func(e model.Event)

// Publisher publishes telemetry events to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.TransportConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("hopspectra-relay"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish encodes e and publishes it to the configured subject.
func (p *Publisher) Publish(e model.Event) error {
	return p.nc.Publish(p.subject, MarshalEvent(e))
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}

// Subscriber receives telemetry events from a NATS subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.TransportConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("hopspectra-collector"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the configured subject and hands every decodable
// event to handler.
func (s *Subscriber) Start(handler EventHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		e, err := UnmarshalEvent(msg.Data)
		if err != nil {
			log.Printf("Error unmarshalling event: %v", err)
			return
		}
		handler(e)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for events...", s.subject)
	return nil
}

// Close drains the subscription so in-flight events are still handled,
// then closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Drain()
	}
	if s.nc != nil {
		s.nc.Drain()
		log.Println("NATS connection closed.")
	}
}
