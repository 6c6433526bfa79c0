package mqttgw

import (
	"encoding/json"
	"testing"
)

func TestParseOrder(t *testing.T) {
	payload := []byte(`{"user_id":"u","order_id":"o","drink_order":"espresso","drink_details":{"coffee":40,"taste":"normal"}}`)
	o, err := ParseOrder(payload)
	if err != nil {
		t.Fatalf("ParseOrder: %v", err)
	}
	if o.UserID != "u" || o.OrderID != "o" || o.DrinkOrder != "espresso" {
		t.Fatalf("order = %+v", o)
	}
	if o.DrinkDetails.Coffee == nil || *o.DrinkDetails.Coffee != 40 {
		t.Fatalf("coffee = %v", o.DrinkDetails.Coffee)
	}
	if o.DrinkDetails.Taste == nil || *o.DrinkDetails.Taste != "normal" {
		t.Fatalf("taste = %v", o.DrinkDetails.Taste)
	}
	if o.DrinkDetails.Milk != nil || o.DrinkDetails.HotWater != nil {
		t.Fatalf("unset ingredients decoded: %+v", o.DrinkDetails)
	}
}

func TestParseOrderRejectsGarbage(t *testing.T) {
	if _, err := ParseOrder([]byte(`{"user_id":`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOrderUpdateShape(t *testing.T) {
	u := OrderUpdate{UserID: "u", OrderID: "o", State: "Ready"}
	var m map[string]string
	if err := json.Unmarshal(u.encode(), &m); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"userId": "u", "orderId": "o", "state": "Ready"}
	if len(m) != len(want) {
		t.Fatalf("update = %v, want %v", m, want)
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("update[%s] = %q, want %q", k, m[k], v)
		}
	}
}
