package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReturnHandler_Create(t *testing.T) {
	orderID := uuid.New()
	itemID := uuid.New()

	tests := []struct {
		name           string
		body           string
		mockReturn     *model.Return
		mockError      error
		expectedStatus int
		expectedCode   string
		expectService  bool
	}{
		{
			name: "Success",
			body: `{"orderId":"` + orderID.String() + `","email":"lucia@example.com","reason":"Talla pequeña",` +
				`"items":[{"orderItemId":"` + itemID.String() + `","quantity":1}]}`,
			mockReturn:     &model.Return{ID: uuid.New(), OrderID: orderID, Reference: "DEV-ABCD2345", Status: model.ReturnStatusPending, RefundAmount: 2000},
			expectedStatus: http.StatusCreated,
			expectService:  true,
		},
		{
			name: "Return window expired",
			body: `{"orderId":"` + orderID.String() + `","email":"lucia@example.com",` +
				`"items":[{"orderItemId":"` + itemID.String() + `","quantity":1}]}`,
			mockError:      model.ErrReturnWindow,
			expectedStatus: http.StatusConflict,
			expectedCode:   model.ErrCodeReturnWindow,
			expectService:  true,
		},
		{
			name:           "Malformed order id",
			body:           `{"orderId":"nope","email":"lucia@example.com","items":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockReturnService)
			handler := NewReturnHandler(mockService, zerolog.Nop())

			if tt.expectService {
				mockService.On("Create", mock.Anything, mock.MatchedBy(func(req *model.ReturnRequest) bool {
					return req.OrderID == orderID && len(req.Items) == 1 && req.Items[0].OrderItemID == itemID
				})).Return(tt.mockReturn, tt.mockError)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/returns", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			handler.Create(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				var resp model.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.expectedCode, resp.Error)
			}
			if tt.expectedStatus == http.StatusCreated {
				var resp model.ReturnResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.True(t, resp.Success)
				assert.Equal(t, "DEV-ABCD2345", resp.Return.Reference)
			}
			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestReturnHandler_GetByID(t *testing.T) {
	returnID := uuid.New()
	mockService := new(MockReturnService)
	mockService.On("GetByID", mock.Anything, returnID).Return(nil, model.ErrReturnNotFound)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/admin/returns/"+returnID.String(), nil), "id", returnID.String())
	w := httptest.NewRecorder()
	NewReturnHandler(mockService, zerolog.Nop()).GetByID(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestReturnHandler_AdvanceStatus(t *testing.T) {
	returnID := uuid.New()
	ref := "re_1"
	mockService := new(MockReturnService)
	mockService.On("AdvanceStatus", mock.Anything, returnID, mock.MatchedBy(func(req *model.ReturnStatusRequest) bool {
		return req.Status == model.ReturnStatusRefunded && req.RefundAmount != nil && *req.RefundAmount == 3500
	})).Return(&model.Return{ID: returnID, Status: model.ReturnStatusRefunded, RefundAmount: 3500, RefundReference: &ref}, nil)

	body := bytes.NewBufferString(`{"status":"refunded","refundAmount":3500}`)
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/admin/returns/"+returnID.String()+"/status", body), "id", returnID.String())
	w := httptest.NewRecorder()
	NewReturnHandler(mockService, zerolog.Nop()).AdvanceStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.ReturnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.ReturnStatusRefunded, resp.Return.Status)
	assert.Equal(t, int64(3500), resp.Return.RefundAmount)
	mockService.AssertExpectations(t)
}
