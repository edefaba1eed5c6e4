// Package stream builds Kafka readers for change-event consumers.
package stream

import (
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// ReaderOptions configures a consumer-group reader.
type ReaderOptions struct {
	Brokers  []string
	Topic    string
	GroupID  string
	Username string
	Password string
	// MaxWait bounds how long a fetch blocks waiting for new records.
	MaxWait time.Duration
}

// ErrNoBrokers is returned when no broker address is configured.
var ErrNoBrokers = errors.New("stream: no kafka brokers configured")

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			brokers = append(brokers, part)
		}
	}
	return brokers
}

// NewDialer returns a dialer. Credentials switch on SASL/PLAIN over TLS.
func NewDialer(username, password string) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	if username != "" && password != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: username, Password: password}
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return dialer
}

// NewReader constructs a group reader that starts from the latest offset of
// a new group. Commits are explicit.
func NewReader(opts ReaderOptions) (*kafka.Reader, error) {
	if len(opts.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if opts.Topic == "" || opts.GroupID == "" {
		return nil, errors.New("stream: topic and group id are required")
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     opts.Brokers,
		Topic:       opts.Topic,
		GroupID:     opts.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     maxWait,
		Dialer:      NewDialer(opts.Username, opts.Password),
	}), nil
}
