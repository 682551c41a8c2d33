package payment

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"storefront/internal/model"
)

const (
	// MaxMetadataValue is the gateway limit on a single metadata value.
	MaxMetadataValue = 500
	// MaxMetadataKeys is the gateway limit on metadata keys per object.
	MaxMetadataKeys = 50

	keyName       = "customer_name"
	keyEmail      = "customer_email"
	keyPhone      = "customer_phone"
	keyAddress    = "address"
	keyCity       = "city"
	keyPostalCode = "postal_code"
	keyCountry    = "country"
	keyShipping   = "shipping_method"
	keyCoupon     = "coupon_code"
	keySubtotal   = "subtotal"
	keyShipCost   = "shipping_cost"
	keyDiscount   = "discount"
	keyTotal      = "total"
	keyItemChunks = "items_chunks"
	keyItemPrefix = "items_"
)

// EncodeIntent projects an order intent onto gateway metadata.
// Items are encoded as productID:size:qty:unitPrice tokens joined by ';' and
// split across items_0..items_n so no value exceeds MaxMetadataValue.
func EncodeIntent(intent model.OrderIntent) (map[string]string, error) {
	md := map[string]string{
		keyName:     truncate(intent.Customer.Name),
		keyEmail:    truncate(intent.Customer.Email),
		keyShipping: string(intent.ShippingMethod),
		keySubtotal: strconv.FormatInt(intent.Subtotal, 10),
		keyShipCost: strconv.FormatInt(intent.Shipping, 10),
		keyDiscount: strconv.FormatInt(intent.Discount, 10),
		keyTotal:    strconv.FormatInt(intent.Total, 10),
	}
	setIfPresent(md, keyPhone, intent.Customer.Phone)
	setIfPresent(md, keyAddress, intent.Customer.Address)
	setIfPresent(md, keyCity, intent.Customer.City)
	setIfPresent(md, keyPostalCode, intent.Customer.PostalCode)
	setIfPresent(md, keyCountry, intent.Customer.Country)
	setIfPresent(md, keyCoupon, intent.CouponCode)

	chunks, err := encodeItems(intent.Items)
	if err != nil {
		return nil, err
	}
	md[keyItemChunks] = strconv.Itoa(len(chunks))
	for i, c := range chunks {
		md[keyItemPrefix+strconv.Itoa(i)] = c
	}

	if len(md) > MaxMetadataKeys {
		return nil, fmt.Errorf("order intent needs %d metadata keys, limit is %d", len(md), MaxMetadataKeys)
	}
	return md, nil
}

// DecodeIntent rebuilds an order intent from gateway metadata.
func DecodeIntent(md map[string]string) (model.OrderIntent, error) {
	intent := model.OrderIntent{
		Customer: model.Customer{
			Name:       md[keyName],
			Email:      md[keyEmail],
			Phone:      md[keyPhone],
			Address:    md[keyAddress],
			City:       md[keyCity],
			PostalCode: md[keyPostalCode],
			Country:    md[keyCountry],
		},
		ShippingMethod: model.ShippingMethod(md[keyShipping]),
		CouponCode:     md[keyCoupon],
	}
	if intent.Customer.Email == "" {
		return intent, fmt.Errorf("metadata missing %s", keyEmail)
	}
	if !intent.ShippingMethod.Valid() {
		return intent, fmt.Errorf("metadata has invalid shipping method %q", md[keyShipping])
	}

	var err error
	amounts := []struct {
		key string
		dst *int64
	}{
		{keySubtotal, &intent.Subtotal},
		{keyShipCost, &intent.Shipping},
		{keyDiscount, &intent.Discount},
		{keyTotal, &intent.Total},
	}
	for _, a := range amounts {
		if *a.dst, err = strconv.ParseInt(md[a.key], 10, 64); err != nil {
			return intent, fmt.Errorf("metadata %s: %w", a.key, err)
		}
	}

	n, err := strconv.Atoi(md[keyItemChunks])
	if err != nil || n < 1 {
		return intent, fmt.Errorf("metadata %s is missing or invalid", keyItemChunks)
	}
	for i := 0; i < n; i++ {
		chunk, ok := md[keyItemPrefix+strconv.Itoa(i)]
		if !ok {
			return intent, fmt.Errorf("metadata missing %s%d", keyItemPrefix, i)
		}
		items, err := decodeItems(chunk)
		if err != nil {
			return intent, err
		}
		intent.Items = append(intent.Items, items...)
	}
	if len(intent.Items) == 0 {
		return intent, fmt.Errorf("metadata carries no items")
	}
	return intent, nil
}

func encodeItems(items []model.LineItem) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order intent has no items")
	}
	var chunks []string
	var b strings.Builder
	for _, it := range items {
		if strings.ContainsAny(it.Size, ":;") {
			return nil, fmt.Errorf("size %q contains a reserved character", it.Size)
		}
		token := fmt.Sprintf("%d:%s:%d:%d", it.ProductID, it.Size, it.Quantity, it.UnitPrice)
		if len(token) > MaxMetadataValue {
			return nil, fmt.Errorf("item token exceeds %d characters", MaxMetadataValue)
		}
		if b.Len() > 0 && b.Len()+1+len(token) > MaxMetadataValue {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(token)
	}
	chunks = append(chunks, b.String())
	return chunks, nil
}

func decodeItems(chunk string) ([]model.LineItem, error) {
	var items []model.LineItem
	for _, token := range strings.Split(chunk, ";") {
		if token == "" {
			continue
		}
		parts := strings.Split(token, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed item token %q", token)
		}
		productID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("item token %q: product id: %w", token, err)
		}
		qty, err := strconv.Atoi(parts[2])
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("item token %q: invalid quantity", token)
		}
		price, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("item token %q: invalid unit price", token)
		}
		items = append(items, model.LineItem{
			ProductID: productID,
			Size:      parts[1],
			Quantity:  qty,
			UnitPrice: price,
		})
	}
	return items, nil
}

func setIfPresent(md map[string]string, key, value string) {
	if value != "" {
		md[key] = truncate(value)
	}
}

// truncate cuts s to MaxMetadataValue bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= MaxMetadataValue {
		return s
	}
	cut := MaxMetadataValue
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
