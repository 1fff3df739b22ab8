package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "gzip")
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "t", []byte("k"), map[string]string{"delta": "15.00"}))
	require.NoError(t, p.PublishBatch(ctx, "t", []Message{{Value: "raw"}, {Value: []byte("bytes")}}))
	require.NoError(t, p.PublishBatch(ctx, "t", nil))

	require.Len(t, w.msgs, 3)
	assert.JSONEq(t, `{"delta":"15.00"}`, string(w.msgs[0].Value))
	assert.Equal(t, "k", string(w.msgs[0].Key))
	assert.Equal(t, "t", w.msgs[0].Topic)
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "bytes", string(w.msgs[2].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishErrors(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("leader not available")}, "gzip")
	err := p.Publish(context.Background(), "t", nil, "x")
	assert.ErrorContains(t, err, "leader not available")

	err = p.Publish(context.Background(), "t", nil, func() {})
	assert.ErrorContains(t, err, "marshal")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"127.0.0.1:9092"}), WithCompression("zstd"))
	require.NoError(t, err)
	assert.Equal(t, kafka.Zstd, p.writer.(*kafka.Writer).Compression)
	assert.NoError(t, p.Close())
}
