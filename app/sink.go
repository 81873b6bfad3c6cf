package app

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soocke/pulse-cam-go/domain/vitals"
	"github.com/soocke/pulse-cam-go/stream"
)

// Broadcaster receives encoded messages for websocket clients.
type Broadcaster interface {
	Broadcast(b []byte)
}

// ResultSink turns controller callbacks into published messages. Publish
// failures are logged and never reach the controller.
type ResultSink struct {
	publisher *stream.Publisher
	hub       Broadcaster
	logger    *slog.Logger
	sessionID func() string
	now       func() time.Time
	results   chan stream.ResultMsg
	synthetic atomic.Bool
}

func NewResultSink(publisher *stream.Publisher, hub Broadcaster, logger *slog.Logger) *ResultSink {
	return &ResultSink{
		publisher: publisher,
		hub:       hub,
		logger:    logger,
		sessionID: func() string { return "" },
		now:       time.Now,
		results:   make(chan stream.ResultMsg, 4),
	}
}

// Callbacks returns the controller callbacks feeding this sink.
func (s *ResultSink) Callbacks() vitals.Callbacks {
	return vitals.Callbacks{
		OnVitalsUpdate:        s.onUpdate,
		OnMeasurementComplete: s.onComplete,
	}
}

// Results delivers final results in completion order. Results are dropped
// when nobody drains the channel.
func (s *ResultSink) Results() <-chan stream.ResultMsg { return s.results }

// MarkSynthetic flags the next completion as produced by the skip path.
func (s *ResultSink) MarkSynthetic() { s.synthetic.Store(true) }

func (s *ResultSink) onUpdate(bpm, spo2 float32) {
	msg := stream.ReadingMsg{SessionID: s.sessionID(), Ts: s.now().UnixMilli(), BPM: bpm, SpO2: spo2}
	if s.publisher != nil {
		if err := s.publisher.PublishReading(msg); err != nil {
			s.logger.Warn("publish reading", "error", err)
		}
	}
	s.broadcast("reading", msg)
}

func (s *ResultSink) onComplete(bpm, spo2 float32) {
	msg := stream.ResultMsg{
		SessionID: s.sessionID(),
		Ts:        s.now().UnixMilli(),
		BPM:       bpm,
		SpO2:      spo2,
		Condition: vitals.Classify(bpm, spo2).String(),
		Synthetic: s.synthetic.Swap(false),
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResult(msg); err != nil {
			s.logger.Warn("publish result", "error", err)
		}
	}
	s.broadcast("result", msg)
	select {
	case s.results <- msg:
	default:
		s.logger.Warn("result dropped", "session", msg.SessionID)
	}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (s *ResultSink) broadcast(kind string, v any) {
	if s.hub == nil {
		return
	}
	b, err := json.Marshal(envelope{Type: kind, Data: v})
	if err != nil {
		s.logger.Warn("encode broadcast", "error", err)
		return
	}
	s.hub.Broadcast(b)
}
