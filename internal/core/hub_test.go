package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/deltadefenders/farmchat-server/internal/auth"
)

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	ctx := context.Background()
	msgs := newFakeMessages()
	hub := NewHub(msgs, msgs, nil)

	alice := newTestClient("a", "alice")
	bob := newTestClient("b", "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	hub.Handle(ctx, alice, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
	hub.Handle(ctx, bob, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})

	// The join acknowledgement only goes to the joining client.
	joinEv := mustEvent(t, bob.Events, EventJoinedConversation)
	if joinEv.ConversationID != "c1" {
		t.Fatalf("unexpected join event: %+v", joinEv)
	}
	mustEvent(t, alice.Events, EventJoinedConversation)
	assertNoEvent(t, alice.Events)

	hub.Handle(ctx, alice, &Command{Kind: CommandSendMessage, ConversationID: "c1", Content: "hello"})

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventNewMessage)
		if ev.Message.Content != "hello" || ev.Message.Sender.ID != "alice" || ev.ConversationID != "c1" {
			t.Fatalf("unexpected message event for %s: %+v", c.ID, ev.Message)
		}
	}

	hub.Handle(ctx, alice, &Command{Kind: CommandLeaveConversation, ConversationID: "c1"})
	mustEvent(t, alice.Events, EventLeftConversation)
	if size := hub.RoomSize("c1"); size != 1 {
		t.Fatalf("expected 1 client in room, got %d", size)
	}

	hub.Handle(ctx, bob, &Command{Kind: CommandSendMessage, ConversationID: "c1", Content: "still here?"})
	mustEvent(t, bob.Events, EventNewMessage)
	assertNoEvent(t, alice.Events)
}

func TestHubSendFailureOnlyReachesSender(t *testing.T) {
	ctx := context.Background()
	msgs := newFakeMessages()
	hub := NewHub(msgs, msgs, nil)

	alice := newTestClient("a", "alice")
	bob := newTestClient("b", "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	hub.Handle(ctx, alice, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
	hub.Handle(ctx, bob, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
	mustEvent(t, alice.Events, EventJoinedConversation)
	mustEvent(t, bob.Events, EventJoinedConversation)

	hub.Handle(ctx, alice, &Command{Kind: CommandSendMessage, ConversationID: "c1", Content: "   "})

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation_error, got %+v", ev.Error)
	}
	assertNoEvent(t, bob.Events)
	if msgs.count() != 0 {
		t.Fatalf("expected no persisted messages, got %d", msgs.count())
	}
}

func TestHubJoinRequiresParticipant(t *testing.T) {
	ctx := context.Background()
	msgs := newFakeMessages()
	hub := NewHub(msgs, msgs, nil)

	mallory := newTestClient("m", "mallory")
	hub.RegisterClient(mallory)

	hub.Handle(ctx, mallory, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
	ev := mustEvent(t, mallory.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeForbidden {
		t.Fatalf("expected forbidden error, got %+v", ev.Error)
	}

	hub.Handle(ctx, mallory, &Command{Kind: CommandJoinConversation, ConversationID: "ghost"})
	ev = mustEvent(t, mallory.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotFound {
		t.Fatalf("expected not_found error, got %+v", ev.Error)
	}

	if size := hub.RoomSize("c1"); size != 0 {
		t.Fatalf("expected empty room, got %d", size)
	}
}

func TestHubJoinWithoutMembershipCheck(t *testing.T) {
	hub := NewHub(newFakeMessages(), nil, nil)

	mallory := newTestClient("m", "mallory")
	hub.RegisterClient(mallory)
	hub.Handle(context.Background(), mallory, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})

	mustEvent(t, mallory.Events, EventJoinedConversation)
}

func TestHubLeaveUnknownRoomError(t *testing.T) {
	hub := NewHub(newFakeMessages(), nil, nil)

	alice := newTestClient("a", "alice")
	hub.RegisterClient(alice)
	hub.Handle(context.Background(), alice, &Command{Kind: CommandLeaveConversation, ConversationID: "ghost"})

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotInRoom {
		t.Fatalf("expected not_in_room error, got %+v", ev)
	}
}

func TestHubMissingConversationID(t *testing.T) {
	hub := NewHub(newFakeMessages(), nil, nil)

	alice := newTestClient("a", "alice")
	hub.RegisterClient(alice)
	hub.Handle(context.Background(), alice, &Command{Kind: CommandSendMessage, ConversationID: " ", Content: "hi"})

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", ev)
	}
}

func TestHubUnregisterRemovesFromRooms(t *testing.T) {
	ctx := context.Background()
	msgs := newFakeMessages()
	msgs.conversations["c2"] = []string{"alice", "carol"}
	hub := NewHub(msgs, msgs, nil)

	alice := newTestClient("a", "alice")
	hub.RegisterClient(alice)
	hub.Handle(ctx, alice, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
	hub.Handle(ctx, alice, &Command{Kind: CommandJoinConversation, ConversationID: "c2"})

	hub.UnregisterClient(alice)

	if hub.RoomSize("c1") != 0 || hub.RoomSize("c2") != 0 {
		t.Fatalf("client still registered in rooms")
	}
	if n := hub.Broadcast("c1", &Event{Kind: EventNewMessage}); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestHubConcurrentSendsAllPersistAndBroadcast(t *testing.T) {
	ctx := context.Background()
	msgs := newFakeMessages()
	hub := NewHub(msgs, msgs, nil)

	observer := NewClient("o", auth.Identity{UserID: "bob"}, 128)
	hub.RegisterClient(observer)
	hub.Handle(ctx, observer, &Command{Kind: CommandJoinConversation, ConversationID: "c1"})
	mustEvent(t, observer.Events, EventJoinedConversation)

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		c := newTestClient(fmt.Sprintf("s%d", i), "alice")
		hub.RegisterClient(c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Handle(ctx, c, &Command{Kind: CommandSendMessage, ConversationID: "c1", Content: "hi"})
		}()
	}
	wg.Wait()

	if msgs.count() != senders {
		t.Fatalf("expected %d persisted messages, got %d", senders, msgs.count())
	}
	for i := 0; i < senders; i++ {
		mustEvent(t, observer.Events, EventNewMessage)
	}
}

func TestHubRunShutsDownClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(newFakeMessages(), nil, nil)

	alice := newTestClient("a", "alice")
	hub.RegisterClient(alice)

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-alice.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client was not signalled on hub shutdown")
	}
	<-done
}

func TestErrorFromServiceHidesInternalDetails(t *testing.T) {
	err := ErrorFromService(errBoom)
	if err.Code != ErrCodeInternal || err.Message != "internal error" {
		t.Fatalf("unexpected mapping: %+v", err)
	}
}
