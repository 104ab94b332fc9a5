package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSendToUser(t *testing.T) {
	hub := NewHub(nil)
	alice, bob := uuid.New(), uuid.New()
	a1 := NewClient(hub, alice, nil)
	a2 := NewClient(hub, alice, nil)
	b1 := NewClient(hub, bob, nil)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b1)

	hub.SendToUser(alice, "ad_group_added", 1, map[string]string{"name": "G1"})

	for _, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.send:
			assert.Equal(t, "ad_group_added", msg.Event)
			assert.Equal(t, uint64(1), msg.Seq)
			var body map[string]string
			require.NoError(t, json.Unmarshal(msg.Data, &body))
			assert.Equal(t, "G1", body["name"])
		default:
			t.Fatalf("client %s received nothing", c.ID)
		}
	}
	assert.Empty(t, b1.send)
	assert.Equal(t, 2, hub.ConnectionCount(alice))
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(nil)
	user := uuid.New()
	c := NewClient(hub, user, nil)
	hub.Register(c)
	hub.Unregister(c)

	_, ok := <-c.send
	assert.False(t, ok)
	assert.Zero(t, hub.ConnectionCount(user))

	// second unregister must not panic on a closed channel
	hub.Unregister(c)
	hub.SendToUser(user, "wizard_reset", 0, nil)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	user := uuid.New()
	c := NewClient(hub, user, nil)
	hub.Register(c)

	for i := 0; i < sendBuffer+10; i++ {
		hub.SendToUser(user, "generation_updated", uint64(i+1), i)
	}
	assert.Len(t, c.send, sendBuffer)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker("http://localhost:5173, https://app.example.com")
	assert.True(t, check(requestWithOrigin("https://app.example.com")))
	assert.True(t, check(requestWithOrigin("")))
	assert.False(t, check(requestWithOrigin("https://evil.example.com")))

	assert.True(t, originChecker("*")(requestWithOrigin("https://any.example.com")))
}

func TestClientSkipsStaleStates(t *testing.T) {
	c := NewClient(NewHub(nil), uuid.New(), nil)

	// a newer event queued ahead of the connect snapshot wins
	assert.False(t, c.stale(WSMessage{Event: "ad_group_added", Seq: 7}))
	assert.True(t, c.stale(WSMessage{Event: EventSnapshot, Seq: 6}))
	assert.True(t, c.stale(WSMessage{Event: "ad_group_added", Seq: 7}))
	assert.False(t, c.stale(WSMessage{Event: "asset_updated", Seq: 8}))

	// unsequenced messages always go out
	assert.False(t, c.stale(WSMessage{Event: "notice"}))
	assert.Equal(t, uint64(8), c.lastSeq)
}
