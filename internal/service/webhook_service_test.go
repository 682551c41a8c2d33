package service

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookService_HandleEvent(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"id":"evt_1"}`)
	confirmed := &model.OrderResponse{Success: true, Order: model.Order{ID: uuid.New()}, Created: true}

	tests := []struct {
		name       string
		event      *payment.Event
		parseErr   error
		confirmErr error
		confirms   bool
		wantErr    error
		wantAnyErr bool
	}{
		{
			name:     "completed session confirms order",
			event:    &payment.Event{ID: "evt_1", Type: payment.EventCheckoutCompleted, SessionID: "cs_1"},
			confirms: true,
		},
		{
			name:     "async success confirms order",
			event:    &payment.Event{ID: "evt_2", Type: payment.EventAsyncPaymentSucceeded, SessionID: "cs_1"},
			confirms: true,
		},
		{
			name:       "completed but unpaid is acknowledged",
			event:      &payment.Event{ID: "evt_3", Type: payment.EventCheckoutCompleted, SessionID: "cs_1"},
			confirms:   true,
			confirmErr: model.ErrPaymentIncomplete,
		},
		{
			name:       "confirmation failure asks for redelivery",
			event:      &payment.Event{ID: "evt_4", Type: payment.EventCheckoutCompleted, SessionID: "cs_1"},
			confirms:   true,
			confirmErr: errors.New("database down"),
			wantAnyErr: true,
		},
		{
			name:  "async failure is only logged",
			event: &payment.Event{ID: "evt_5", Type: payment.EventAsyncPaymentFailed, SessionID: "cs_1"},
		},
		{
			name:  "unrelated event is acknowledged",
			event: &payment.Event{ID: "evt_6", Type: "invoice.paid"},
		},
		{
			name:     "bad signature",
			parseErr: payment.ErrInvalidSignature,
			wantErr:  payment.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := new(MockGateway)
			confirmation := new(MockConfirmationService)

			gateway.On("ParseWebhook", payload, "t=1,v1=sig").Return(tt.event, tt.parseErr)
			if tt.confirms {
				if tt.confirmErr != nil {
					confirmation.On("Confirm", ctx, "cs_1", SourceWebhook).Return(nil, tt.confirmErr)
				} else {
					confirmation.On("Confirm", ctx, "cs_1", SourceWebhook).Return(confirmed, nil)
				}
			}

			svc := NewWebhookService(gateway, confirmation, zerolog.Nop())
			err := svc.HandleEvent(ctx, payload, "t=1,v1=sig")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantAnyErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}

			confirmation.AssertExpectations(t)
			if !tt.confirms {
				confirmation.AssertNotCalled(t, "Confirm")
			}
		})
	}
}
