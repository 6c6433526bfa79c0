package mqttgw

import "encoding/json"

// BrewOrder is the inbound bus payload for one beverage order.
type BrewOrder struct {
	UserID       string       `json:"user_id"`
	OrderID      string       `json:"order_id"`
	DrinkOrder   string       `json:"drink_order"`
	DrinkDetails DrinkDetails `json:"drink_details"`
}

// DrinkDetails carries the optional ingredient overrides. Validation of the
// values against the machine's recipe tables happens upstream; the gateway
// only logs them.
type DrinkDetails struct {
	Coffee   *uint16 `json:"coffee,omitempty"`
	Taste    *string `json:"taste,omitempty"`
	Milk     *uint16 `json:"milk,omitempty"`
	HotWater *uint16 `json:"hotwater,omitempty"`
}

// ParseOrder decodes one bus payload.
func ParseOrder(payload []byte) (BrewOrder, error) {
	var o BrewOrder
	err := json.Unmarshal(payload, &o)
	return o, err
}

// Terminal order state beyond the session's status projection.
const stateCompleted = "Completed"

// stateAccepted is published once when the order starts processing, before
// the first machine status is known.
const stateAccepted = "Accepted"

// OrderUpdate is one outbound status message, published to
// <topic-out>/<order_id>.
type OrderUpdate struct {
	UserID  string `json:"userId"`
	OrderID string `json:"orderId"`
	State   string `json:"state"`
}

func (u OrderUpdate) encode() []byte {
	b, _ := json.Marshal(u)
	return b
}
