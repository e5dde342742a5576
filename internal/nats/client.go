// Package nats publishes moderation decisions to NATS JetStream.
package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-proxy/pkg/logger"
	"github.com/capitalize-ai/chat-proxy/pkg/metrics"
)

// maxPendingAcks bounds decisions awaiting a JetStream ack. PublishAsync
// stalls once it is reached, so it is kept well above normal traffic.
const maxPendingAcks = 4096

// Config holds the decision stream connection settings.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// Client is the decision stream connection.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect dials the server and prepares JetStream for asynchronous decision
// publishing. Failed acks are counted against the nats decision sink.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	log = log.With(zap.String("component", "decision_stream"))

	opts, err := connectOptions(cfg, log)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncErrHandler(publishErrHandler(log)),
		jetstream.WithPublishAsyncMaxPending(maxPendingAcks),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info("decision stream connected", zap.String("url", nc.ConnectedUrl()))

	return &Client{
		conn:   nc,
		js:     js,
		logger: log,
	}, nil
}

func connectOptions(cfg Config, log *logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("chat-proxy-decisions"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("decision stream disconnected, buffering publishes", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("decision stream reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("decision stream error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	return opts, nil
}

// publishErrHandler observes decisions whose ack never arrived or was
// negative. They are already lost to the stream at this point.
func publishErrHandler(log *logger.Logger) jetstream.MsgErrHandler {
	return func(_ jetstream.JetStream, msg *nats.Msg, err error) {
		metrics.DecisionLogFailures.WithLabelValues(sinkName).Inc()

		subject := ""
		if msg != nil {
			subject = msg.Subject
		}
		log.Warn("decision publish not acknowledged",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close waits briefly for outstanding acks, then drains the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}

	select {
	case <-c.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		c.logger.Warn("closing with unacknowledged decisions",
			zap.Int("pending", c.js.PublishAsyncPending()),
		)
	}

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
