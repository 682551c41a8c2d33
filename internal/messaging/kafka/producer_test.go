package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Publish(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewConfig("test"))
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.EventType != string(EventOrderPaid) || env.AggregateID != "order-1" {
			return errors.New("unexpected envelope")
		}
		var payload OrderEvent
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}
		if payload.Total != 4500 {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducerFrom(mp, "", zerolog.Nop())
	assert.Equal(t, DefaultTopic, p.topic)

	payload, err := json.Marshal(OrderEvent{OrderID: "order-1", Status: "paid", Total: 4500})
	require.NoError(t, err)

	err = p.Publish(context.Background(), "evt-1", string(EventOrderPaid), "order-1", payload)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducer_Publish_SendFails(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewConfig("test"))
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(mp, "events", zerolog.Nop())
	err := p.Publish(context.Background(), "evt-2", string(EventOrderCancelled), "order-2", []byte(`{}`))

	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_Publish_CancelledContext(t *testing.T) {
	mp := mocks.NewSyncProducer(t, NewConfig("test"))
	p := NewProducerFrom(mp, "events", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, "evt-3", string(EventReturnCreated), "ret-1", []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("storefront")
	assert.Equal(t, "storefront", cfg.ClientID)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	require.NoError(t, cfg.Validate())
}
