package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/require"
)

type event struct {
	Key   string `json:"natural_key"`
	RunID string `json:"run_id"`
}

func (e event) Attributes() map[string]string {
	return map[string]string{AttrRunID: e.RunID}
}

func newTestPublisher(send sendFunc) *Publisher {
	return &Publisher{send: send, topics: make(map[string]*pubsub.Topic)}
}

func TestPublishMarshalsPayloadAndAttributes(t *testing.T) {
	t.Parallel()

	var gotTopic string
	var gotMsg *pubsub.Message
	p := newTestPublisher(func(_ context.Context, topic string, msg *pubsub.Message) (string, error) {
		gotTopic, gotMsg = topic, msg
		return "srv-1", nil
	})

	id, err := p.Publish(context.Background(), "listings-stored", event{Key: "k1", RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, "srv-1", id)
	require.Equal(t, "listings-stored", gotTopic)
	require.Equal(t, map[string]string{AttrRunID: "run-1"}, gotMsg.Attributes)

	var decoded event
	require.NoError(t, json.Unmarshal(gotMsg.Data, &decoded))
	require.Equal(t, "k1", decoded.Key)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	p := newTestPublisher(func(context.Context, string, *pubsub.Message) (string, error) {
		return "", errors.New("deadline exceeded")
	})
	_, err := p.Publish(context.Background(), "listings-stored", map[string]string{"a": "b"})
	require.ErrorContains(t, err, "publish message")

	_, err = p.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = p.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
	require.NoError(t, newTestPublisher(nil).Close())
}
