package mqttgw

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/FlorentCollin/longshot/internal/driver"
	"github.com/FlorentCollin/longshot/internal/sim"
)

func TestRunOrderPublishesProgressAndCompleted(t *testing.T) {
	client := &fakeClient{}
	gw := New(Config{
		TopicOut: "orders/status",
		DeviceID: sim.DefaultName,
	}, func(ctx context.Context, deviceID string) (driver.Driver, error) {
		return sim.New(deviceID)
	})

	order, err := ParseOrder([]byte(`{"user_id":"u","order_id":"o","drink_order":"espresso","drink_details":{"coffee":40,"taste":"normal"}}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.runOrder(ctx, client, order); err != nil {
		t.Fatalf("runOrder: %v", err)
	}

	msgs := client.published()
	if len(msgs) < 2 {
		t.Fatalf("published %d messages, want at least 2", len(msgs))
	}
	for _, m := range msgs {
		if m.topic != "orders/status/o" {
			t.Fatalf("published to %q, want orders/status/o", m.topic)
		}
	}
	sawNonCompleted := false
	for _, m := range msgs[:len(msgs)-1] {
		var u OrderUpdate
		if err := json.Unmarshal(m.payload, &u); err != nil {
			t.Fatalf("bad update payload %s: %v", m.payload, err)
		}
		if u.UserID != "u" || u.OrderID != "o" {
			t.Fatalf("update identity = %+v", u)
		}
		if u.State != stateCompleted {
			sawNonCompleted = true
		}
	}
	if !sawNonCompleted {
		t.Fatal("no non-Completed status update observed")
	}
	var last OrderUpdate
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &last); err != nil {
		t.Fatal(err)
	}
	if last.State != stateCompleted {
		t.Fatalf("terminal state = %q, want %q", last.State, stateCompleted)
	}
}

type publishedMsg struct {
	topic   string
	payload []byte
}

// fakeClient records publishes; every token resolves immediately.
type fakeClient struct {
	mu   sync.Mutex
	msgs []publishedMsg
}

func (c *fakeClient) published() []publishedMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishedMsg, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = append([]byte(nil), p...)
	case string:
		b = []byte(p)
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, publishedMsg{topic: topic, payload: b})
	c.mu.Unlock()
	return doneToken{}
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return doneToken{} }
func (c *fakeClient) Disconnect(uint)        {}
func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token        { return doneToken{} }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

var _ mqtt.Client = (*fakeClient)(nil)
