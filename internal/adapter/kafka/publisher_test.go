package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/platform/correlation"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestDeliver_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	now := time.Date(2020, 11, 5, 12, 0, 0, 0, time.UTC)
	p := &ReportPublisher{writer: w, clock: clockwork.NewFakeClockAt(now), Topic: "reports"}

	ctx := correlation.WithID(context.Background(), "abcd1234")
	require.NoError(t, p.Deliver(ctx, domain.Report{SubscriberID: "42", Region: "Nevada", Text: "Nevada:\n..."}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, correlationHeader, msg.Headers[0].Key)
	assert.Equal(t, "abcd1234", string(msg.Headers[0].Value))

	var got ReportMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, ReportMessage{SubscriberID: "42", Region: "Nevada", Text: "Nevada:\n...", PublishedAt: now}, got)
}

func TestDeliver_NoCorrelationHeaderWithoutID(t *testing.T) {
	w := &fakeWriter{}
	p := &ReportPublisher{writer: w, clock: clockwork.NewFakeClock()}

	require.NoError(t, p.Deliver(context.Background(), domain.Report{SubscriberID: "42"}))
	assert.Empty(t, w.msgs[0].Headers)
}

func TestDeliver_WrapsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &ReportPublisher{writer: w, clock: clockwork.NewFakeClock()}

	err := p.Deliver(context.Background(), domain.Report{SubscriberID: "42"})
	assert.ErrorContains(t, err, "kafka write: leader not available")
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	p := &ReportPublisher{writer: w}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
