package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"logistics/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectFake(t *testing.T) (*Client, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	client, err := ConnectRabbitMQ(context.Background(), testConfig(time.Hour), testLogger(), WithDialer(d.Dial))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, d
}

func TestPublishWritesPersistentEnvelope(t *testing.T) {
	client, d := connectFake(t)
	pub := NewPublisher(client, testLogger(), contracts.ExchangeLogisticsTopic)

	evt, err := contracts.New(contracts.KindOrderStatusChanged,
		contracts.OrderStatusChanged{OrderID: "o1", NewStatus: "delivered", VehicleID: "42", Sequence: 3},
		contracts.ProducerMatching)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), contracts.RoutingKey(evt.Kind), evt))

	msgs, keys := d.Last().Channels()[0].Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"order.status_changed"}, keys)
	assert.Equal(t, amqp.Persistent, msgs[0].DeliveryMode)
	assert.Equal(t, "application/json", msgs[0].ContentType)
	assert.Equal(t, evt.ID, msgs[0].MessageId)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Body, &got))
	assert.Equal(t, "ORDER_STATUS_CHANGED", got["event"])
	assert.Equal(t, evt.DedupKey, got["dedupKey"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "42", data["vehicleId"])
}

func TestPublishNackIsReported(t *testing.T) {
	client, d := connectFake(t)
	ch := d.Last().Channels()[0]
	ch.mu.Lock()
	ch.nack = true
	ch.mu.Unlock()

	err := client.PublishMessage(context.Background(), contracts.ExchangeLogisticsTopic, "order.matched", "m1", []byte(`{}`))
	assert.ErrorIs(t, err, ErrPublishNacked)
}

func TestLateConfirmIsNotTakenForTheNextPublish(t *testing.T) {
	client, d := connectFake(t)
	ch := d.Last().Channels()[0]
	ch.mu.Lock()
	ch.hold, ch.nack = true, true
	ch.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.PublishMessage(ctx, contracts.ExchangeLogisticsTopic, "order.matched", "m1", []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the nack for m1 arrives only now
	ch.mu.Lock()
	ch.nack = false
	ch.mu.Unlock()
	ch.Release()

	err = client.PublishMessage(context.Background(), contracts.ExchangeLogisticsTopic, "order.status_changed", "m2", []byte(`{}`))
	require.NoError(t, err)
}

func TestPublishWhileDisconnectedIsNotInitialized(t *testing.T) {
	client, d := connectFake(t)
	d.Last().Drop()

	require.Eventually(t, func() bool { return !client.IsReady() }, time.Second, 5*time.Millisecond)
	err := client.PublishMessage(context.Background(), contracts.ExchangeLogisticsTopic, "order.matched", "m1", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestPublishAfterCloseIsNotInitialized(t *testing.T) {
	client, _ := connectFake(t)
	client.Close()

	pub := NewPublisher(client, testLogger(), contracts.ExchangeLogisticsTopic)
	err := pub.Publish(context.Background(), "order.matched", contracts.Event{Kind: contracts.KindOrderMatched})
	assert.ErrorIs(t, err, ErrNotInitialized)
}
