package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx := context.Background()
	msgs := newFakeMessages()
	hub := NewHub(msgs, nil, nil)

	sender := newTestClient("sender", "alice")
	hub.RegisterClient(sender)

	clients := make([]*Client, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := newTestClient(fmt.Sprintf("c%d", i), "bob")
		hub.RegisterClient(c)
		hub.Handle(ctx, c, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
		<-c.Events
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Broadcast("c1", &Event{Kind: EventNewMessage, ConversationID: "c1"})
		<-target.Events
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
