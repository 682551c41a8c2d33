package payment

import (
	"strconv"
	"strings"
	"testing"

	"storefront/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIntent() model.OrderIntent {
	return model.OrderIntent{
		Customer: model.Customer{
			Name:       "Lucía Pérez",
			Email:      "lucia@example.com",
			Phone:      "+34 600 000 000",
			Address:    "Calle Mayor 1",
			City:       "Madrid",
			PostalCode: "28013",
			Country:    "ES",
		},
		ShippingMethod: model.ShippingStandard,
		CouponCode:     "VERANO10",
		Items: []model.LineItem{
			{ProductID: 1, Size: "M", Quantity: 2, UnitPrice: 1999},
			{ProductID: 7, Size: "", Quantity: 1, UnitPrice: 2500},
		},
		Subtotal: 6498,
		Shipping: 495,
		Discount: 650,
		Total:    6343,
	}
}

func TestEncodeDecodeIntent(t *testing.T) {
	intent := sampleIntent()

	md, err := EncodeIntent(intent)
	require.NoError(t, err)
	assert.Equal(t, "1:M:2:1999;7::1:2500", md["items_0"])
	assert.Equal(t, "1", md["items_chunks"])

	decoded, err := DecodeIntent(md)
	require.NoError(t, err)
	assert.Equal(t, intent, decoded)
}

func TestEncodeIntent_ChunksLongCarts(t *testing.T) {
	intent := sampleIntent()
	intent.Items = nil
	for i := 0; i < 120; i++ {
		intent.Items = append(intent.Items, model.LineItem{ProductID: int64(100000 + i), Size: "XL", Quantity: 3, UnitPrice: 12345})
	}

	md, err := EncodeIntent(intent)
	require.NoError(t, err)

	chunks, err := strconv.Atoi(md["items_chunks"])
	require.NoError(t, err)
	assert.Greater(t, chunks, 1)
	for k, v := range md {
		assert.LessOrEqual(t, len(v), MaxMetadataValue, "value of %s too long", k)
	}

	decoded, err := DecodeIntent(md)
	require.NoError(t, err)
	assert.Equal(t, intent.Items, decoded.Items)
}

func TestEncodeIntent_TruncatesLongValues(t *testing.T) {
	intent := sampleIntent()
	intent.Customer.Address = strings.Repeat("ñ", 400)

	md, err := EncodeIntent(intent)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(md["address"]), MaxMetadataValue)
	assert.True(t, strings.HasPrefix(intent.Customer.Address, md["address"]))
}

func TestEncodeIntent_Errors(t *testing.T) {
	t.Run("Error - no items", func(t *testing.T) {
		intent := sampleIntent()
		intent.Items = nil
		_, err := EncodeIntent(intent)
		assert.Error(t, err)
	})

	t.Run("Error - reserved character in size", func(t *testing.T) {
		intent := sampleIntent()
		intent.Items[0].Size = "M;L"
		_, err := EncodeIntent(intent)
		assert.Error(t, err)
	})
}

func TestDecodeIntent_Errors(t *testing.T) {
	valid, err := EncodeIntent(sampleIntent())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(md map[string]string)
	}{
		{name: "missing email", mutate: func(md map[string]string) { delete(md, "customer_email") }},
		{name: "bad shipping method", mutate: func(md map[string]string) { md["shipping_method"] = "drone" }},
		{name: "bad total", mutate: func(md map[string]string) { md["total"] = "abc" }},
		{name: "missing chunk", mutate: func(md map[string]string) { md["items_chunks"] = "2" }},
		{name: "malformed token", mutate: func(md map[string]string) { md["items_0"] = "1:M:2" }},
		{name: "zero quantity", mutate: func(md map[string]string) { md["items_0"] = "1:M:0:100" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := make(map[string]string, len(valid))
			for k, v := range valid {
				md[k] = v
			}
			tt.mutate(md)

			_, err := DecodeIntent(md)
			assert.Error(t, err)
		})
	}
}

func TestBuildSessionParams(t *testing.T) {
	req := SessionRequest{
		Lines:         []SessionLine{{Name: "Camiseta", UnitPrice: 1999, Quantity: 2}},
		Shipping:      495,
		CustomerEmail: "lucia@example.com",
		Currency:      "eur",
		SuccessURL:    "https://shop.example.com/ok?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://shop.example.com/cart",
		Metadata:      map[string]string{"total": "4493"},
	}

	params := buildSessionParams(req, "coupon_123")

	require.Len(t, params.LineItems, 2)
	assert.Equal(t, int64(1999), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	assert.Equal(t, "Envío", *params.LineItems[1].PriceData.ProductData.Name)
	assert.Equal(t, int64(495), *params.LineItems[1].PriceData.UnitAmount)
	require.Len(t, params.Discounts, 1)
	assert.Equal(t, "coupon_123", *params.Discounts[0].Coupon)
	assert.Equal(t, "4493", params.Metadata["total"])
	assert.Equal(t, "lucia@example.com", *params.CustomerEmail)
}

func TestBuildSessionParams_PickupWithoutDiscount(t *testing.T) {
	params := buildSessionParams(SessionRequest{
		Lines:    []SessionLine{{Name: "Gorra", UnitPrice: 1500, Quantity: 1}},
		Currency: "eur",
	}, "")

	assert.Len(t, params.LineItems, 1)
	assert.Empty(t, params.Discounts)
	assert.Nil(t, params.CustomerEmail)
}
