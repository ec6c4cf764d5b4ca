package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockJetStream struct {
	mock.Mock
}

func (m *mockJetStream) Publish(ctx context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, payload)
	var ack *jetstream.PubAck
	if args.Get(0) != nil {
		ack = args.Get(0).(*jetstream.PubAck)
	}
	return ack, args.Error(1)
}

func Test_NatsPublisher_Publish(t *testing.T) {
	event := events.ProductsUpdatedEvent{Count: 4, UpdatedAt: time.Unix(1700000000, 0).UTC()}
	testCases := []struct {
		name      string
		ackErr    error
		expectErr bool
	}{
		{name: "published"},
		{name: "broker error", ackErr: errors.New("no responders"), expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			js := new(mockJetStream)
			js.On("Publish", mock.Anything, messaging.ProductsUpdatedSubject, mock.MatchedBy(func(p []byte) bool {
				var decoded events.ProductsUpdatedEvent
				return json.Unmarshal(p, &decoded) == nil && decoded.Count == 4
			})).Return(&jetstream.PubAck{Stream: "STOREFRONT"}, tc.ackErr).Once()
			publisher := NewNatsPublisher(js)

			// when
			err := publisher.Publish(context.Background(), event)

			// then
			if tc.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.ackErr)
			} else {
				require.NoError(t, err)
			}
			js.AssertExpectations(t)
		})
	}
}
