package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	require.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	require.Empty(t, ParseBrokers(""))
}

func TestNewDialer(t *testing.T) {
	d := NewDialer("", "")
	require.Nil(t, d.SASLMechanism)
	require.Nil(t, d.TLS)

	d = NewDialer("svc", "secret")
	require.NotNil(t, d.SASLMechanism)
	require.Equal(t, "PLAIN", d.SASLMechanism.Name())
	require.NotNil(t, d.TLS)
}

func TestNewReaderValidation(t *testing.T) {
	_, err := NewReader(ReaderOptions{Topic: "t", GroupID: "g"})
	require.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewReader(ReaderOptions{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.Error(t, err)

	r, err := NewReader(ReaderOptions{Brokers: []string{"localhost:9092"}, Topic: "t", GroupID: "g"})
	require.NoError(t, err)
	require.Equal(t, "t", r.Config().Topic)
	require.NoError(t, r.Close())
}
