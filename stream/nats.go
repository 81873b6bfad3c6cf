// Package stream publishes live readings and final results to NATS
// subjects and websocket clients.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNotConnected is returned when publishing without a connection.
var ErrNotConnected = errors.New("stream: not connected")

// Connect dials url with reconnects enabled indefinitely.
func Connect(url, name string) (*nats.Conn, error) {
	if name == "" {
		name = "pulse-cam"
	}
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// MsgPublisher is the subset of *nats.Conn used for publishing.
type MsgPublisher interface {
	Publish(subj string, data []byte) error
}

// ReadingMsg is one instantaneous estimate.
type ReadingMsg struct {
	Subject   string  `json:"subject"`
	SessionID string  `json:"session_id"`
	Ts        int64   `json:"ts"`
	BPM       float32 `json:"bpm"`
	SpO2      float32 `json:"spo2"`
}

// ResultMsg is the averaged result of a measurement session.
type ResultMsg struct {
	Subject   string  `json:"subject"`
	SessionID string  `json:"session_id"`
	Ts        int64   `json:"ts"`
	BPM       float32 `json:"bpm"`
	SpO2      float32 `json:"spo2"`
	Condition string  `json:"condition"`
	Synthetic bool    `json:"synthetic,omitempty"`
}

// Publisher encodes readings and results as JSON on fixed subjects.
type Publisher struct {
	pub      MsgPublisher
	readings string
	results  string
	logger   *slog.Logger
}

func NewPublisher(pub MsgPublisher, readingsSubject, resultsSubject string, logger *slog.Logger) *Publisher {
	return &Publisher{pub: pub, readings: readingsSubject, results: resultsSubject, logger: logger}
}

func (p *Publisher) PublishReading(m ReadingMsg) error {
	if p == nil {
		return ErrNotConnected
	}
	m.Subject = p.readings
	return p.publish(p.readings, m)
}

func (p *Publisher) PublishResult(m ResultMsg) error {
	if p == nil {
		return ErrNotConnected
	}
	m.Subject = p.results
	if err := p.publish(p.results, m); err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Info("result published", "subject", p.results, "session", m.SessionID, "bpm", m.BPM, "spo2", m.SpO2)
	}
	return nil
}

func (p *Publisher) publish(subject string, v any) error {
	if p.pub == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", subject, err)
	}
	if err := p.pub.Publish(subject, b); err != nil {
		return fmt.Errorf("stream: publish %s: %w", subject, err)
	}
	return nil
}
