package clients

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/config"
	"stealth-backend/internal/metrics"
	"stealth-backend/internal/types"
)

// LedgerStreamName JetStream stream holding ledger events
const LedgerStreamName = "LEDGER_EVENTS"

type msgSender func(msg *nats.Msg) error

// NATSPublisher forwards committed ledger events to NATS. Each event goes to
// <prefix>.<EventType>; with JetStream the event id is the message id so a
// redelivered event is deduplicated by the server.
type NATSPublisher struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	send   msgSender
	prefix string
	log    logrus.FieldLogger
}

// NewNATSPublisher connects to NATS and, when enabled, ensures the ledger stream.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	log := logrus.WithField("component", "nats")
	conn, err := nats.Connect(cfg.URL,
		nats.Name("stealth-settlement-relay"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("⚠️ NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("✅ NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	p := &NATSPublisher{
		conn:   conn,
		prefix: strings.TrimSuffix(cfg.SubjectPrefix, "."),
		log:    log,
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		p.js = js
		if err := p.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
		p.send = func(msg *nats.Msg) error {
			_, err := js.PublishMsg(msg)
			return err
		}
	} else {
		p.send = conn.PublishMsg
	}

	log.WithFields(logrus.Fields{
		"url":       conn.ConnectedUrl(),
		"jetstream": cfg.EnableJetStream,
		"prefix":    p.prefix,
	}).Info("✅ NATS publisher ready")
	return p, nil
}

func newPublisherWithSender(prefix string, send msgSender) *NATSPublisher {
	return &NATSPublisher{
		send:   send,
		prefix: strings.TrimSuffix(prefix, "."),
		log:    logrus.WithField("component", "nats"),
	}
}

func (p *NATSPublisher) ensureStream() error {
	if _, err := p.js.StreamInfo(LedgerStreamName); err == nil {
		p.log.Infof("Stream %s already exists", LedgerStreamName)
		return nil
	}

	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:       LedgerStreamName,
		Subjects:   []string{p.prefix + ".>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", LedgerStreamName, err)
	}
	p.log.Infof("Stream %s created", LedgerStreamName)
	return nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t types.EventType) string {
	return p.prefix + "." + string(t)
}

// HandleLedgerEvent publishes ev. Failures are logged and counted; the ledger
// has already committed and does not wait on NATS.
func (p *NATSPublisher) HandleLedgerEvent(ev types.LedgerEvent) {
	subject := p.Subject(ev.Type)
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.WithError(err).WithField("event_id", ev.ID).Error("❌ Failed to encode ledger event")
		metrics.NATSMessagesFailed.WithLabelValues(subject).Inc()
		return
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.ID)

	if err := p.send(msg); err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"subject":  subject,
			"event_id": ev.ID,
		}).Error("❌ Failed to publish ledger event")
		metrics.NATSMessagesFailed.WithLabelValues(subject).Inc()
		return
	}
	metrics.NATSMessagesPublished.WithLabelValues(subject).Inc()
}

// IsConnected reports whether the underlying connection is up.
func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	metrics.NATSConnectionStatus.Set(0)
}
