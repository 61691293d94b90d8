package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/NicolasFrouin/chat/internal/store"
)

func TestHubSendsChatsOnConnect(t *testing.T) {
	hub, dir, msgs := startHub(t, Options{})

	author, _ := dir.Create(context.Background(), store.Profile{Name: "alice"})
	if _, err := msgs.Post(context.Background(), author.ID, "hello"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c := NewClient("c1", 8)
	hub.RegisterClient(c)
	ev := mustEvent(t, c.Events, EventChats)
	if len(ev.Messages) != 1 || ev.Messages[0].Text != "hello" {
		t.Fatalf("unexpected initial chats: %+v", ev.Messages)
	}
}

func TestHubConnectReportsListFailure(t *testing.T) {
	hub, _, msgs := startHub(t, Options{})
	msgs.mu.Lock()
	msgs.listErr = errors.New("disk on fire")
	msgs.mu.Unlock()

	c := NewClient("c1", 8)
	hub.RegisterClient(c)
	ev := mustEvent(t, c.Events, EventError)
	if ev.Error.Code != ErrCodeInternal || ev.Error.Message != MsgInternal {
		t.Fatalf("unexpected error: %+v", ev.Error)
	}
}

func TestHubCreateUserAuthenticatesAndBroadcasts(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")

	submit(t, hub, alice, &Command{
		Kind:      CommandCreateUser,
		RequestID: "req-1",
		Profile:   &store.Profile{Name: "Alice", Color: "#ff0000"},
	})

	created := mustEvent(t, alice.Events, EventUserCreated)
	if created.User.Name != "Alice" {
		t.Fatalf("unexpected created user: %+v", created.User)
	}
	mustEvent(t, alice.Events, EventNewUser)
	ack := mustAck(t, alice.Events, CommandCreateUser)
	if !ack.Ack.Success || ack.Ack.RequestID != "req-1" || ack.User.ID != created.User.ID {
		t.Fatalf("unexpected ack: %+v %+v", ack.Ack, ack.User)
	}

	newUser := mustEvent(t, bob.Events, EventNewUser)
	if newUser.User.ID != created.User.ID {
		t.Fatalf("bob saw %+v", newUser.User)
	}

	presence := hub.Presence()
	if len(presence.Online) != 1 || presence.Online[0] != created.User.ID || presence.Connections != 1 {
		t.Fatalf("unexpected presence: %+v", presence)
	}
}

func TestHubCreateUserValidationFailure(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")

	submit(t, hub, alice, &Command{Kind: CommandCreateUser, Profile: &store.Profile{Name: "   "}})

	ev := mustEvent(t, alice.Events, EventLoginError)
	if ev.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("expected validation error, got %+v", ev.Error)
	}
	ack := mustAck(t, alice.Events, CommandCreateUser)
	if ack.Ack.Success {
		t.Fatal("expected failed ack")
	}
	expectNoEvent(t, bob.Events, EventNewUser, 100*time.Millisecond)

	if _, ok := hub.registry.Resolve(alice.ID); ok {
		t.Fatal("connection must stay unauthenticated")
	}
}

func TestHubLoginResolution(t *testing.T) {
	hub, dir, _ := startHub(t, Options{})
	existing, _ := dir.Create(context.Background(), store.Profile{Name: "carol", Color: "#111111"})

	tests := []struct {
		name     string
		cmd      *Command
		wantID   string
		wantName string
		wantCode string
	}{
		{
			name:   "by id",
			cmd:    &Command{Kind: CommandLogin, UserID: existing.ID},
			wantID: existing.ID,
		},
		{
			name:   "by name keeps stored profile",
			cmd:    &Command{Kind: CommandLogin, Profile: &store.Profile{Name: "carol", Color: "#222222"}},
			wantID: existing.ID,
		},
		{
			name:     "unknown id falls back to profile",
			cmd:      &Command{Kind: CommandLogin, UserID: "missing", Profile: &store.Profile{Name: "dave", Color: "#333333"}},
			wantName: "dave",
		},
		{
			name:     "unknown id without profile",
			cmd:      &Command{Kind: CommandLogin, UserID: "missing"},
			wantCode: ErrCodeAuthenticationFailed,
		},
		{
			name:     "nothing supplied",
			cmd:      &Command{Kind: CommandLogin},
			wantCode: ErrCodeAuthenticationFailed,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := connect(t, hub, fmt.Sprintf("login-%d", i))
			submit(t, hub, c, tt.cmd)

			if tt.wantCode != "" {
				ev := mustEvent(t, c.Events, EventLoginError)
				if ev.Error.Code != tt.wantCode || ev.Error.Message != MsgAuthenticationFailed {
					t.Fatalf("unexpected error: %+v", ev.Error)
				}
				if ack := mustAck(t, c.Events, CommandLogin); ack.Ack.Success {
					t.Fatal("expected failed ack")
				}
				return
			}

			ev := mustEvent(t, c.Events, EventLoginSuccess)
			if tt.wantID != "" && ev.User.ID != tt.wantID {
				t.Fatalf("logged in as %s, want %s", ev.User.ID, tt.wantID)
			}
			if tt.wantName != "" && ev.User.Name != tt.wantName {
				t.Fatalf("logged in as %s, want %s", ev.User.Name, tt.wantName)
			}
			if tt.wantID == existing.ID && ev.User.Color != "#111111" {
				t.Fatalf("login must not change the profile, got color %s", ev.User.Color)
			}
			mustEvent(t, c.Events, EventUserJoined)
			if ack := mustAck(t, c.Events, CommandLogin); !ack.Ack.Success {
				t.Fatalf("expected success ack, got %+v", ack.Error)
			}
		})
	}
}

func TestHubCreateChatRequiresAuthentication(t *testing.T) {
	hub, _, msgs := startHub(t, Options{})
	anon := connect(t, hub, "anon")
	bob := connect(t, hub, "b")

	submit(t, hub, anon, &Command{Kind: CommandCreateChat, Text: "hi"})

	ack := mustAck(t, anon.Events, CommandCreateChat)
	if ack.Ack.Success || ack.Error.Message != MsgNotAuthenticated {
		t.Fatalf("unexpected ack: %+v %+v", ack.Ack, ack.Error)
	}
	expectNoEvent(t, bob.Events, EventNewChat, 100*time.Millisecond)

	if list, _ := msgs.List(context.Background()); len(list) != 0 {
		t.Fatalf("message log must be unchanged, got %d", len(list))
	}
}

func TestHubChatLifecycle(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	user := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandCreateChat, RequestID: "1", Text: "hi"})
	posted := mustEvent(t, bob.Events, EventNewChat)
	if posted.Message.Text != "hi" || posted.Message.Author.ID != user.ID {
		t.Fatalf("unexpected message: %+v", posted.Message)
	}
	if ack := mustAck(t, alice.Events, CommandCreateChat); !ack.Ack.Success || ack.Message.ID != posted.Message.ID {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	submit(t, hub, bob, &Command{Kind: CommandUpdateChat, ID: posted.Message.ID, Text: "hello"})
	updated := mustEvent(t, alice.Events, EventChatUpdated)
	if updated.Message.Text != "hello" || !updated.Message.Modified {
		t.Fatalf("unexpected update: %+v", updated.Message)
	}
	mustAck(t, bob.Events, CommandUpdateChat)

	submit(t, hub, alice, &Command{Kind: CommandFindOneChat, ID: posted.Message.ID})
	if ack := mustAck(t, alice.Events, CommandFindOneChat); ack.Message.Text != "hello" {
		t.Fatalf("unexpected find: %+v", ack.Message)
	}

	submit(t, hub, alice, &Command{Kind: CommandRemoveChat, ID: posted.Message.ID})
	removed := mustEvent(t, bob.Events, EventChatRemoved)
	if removed.MessageID != posted.Message.ID {
		t.Fatalf("unexpected removal: %+v", removed)
	}
	mustAck(t, alice.Events, CommandRemoveChat)

	submit(t, hub, alice, &Command{Kind: CommandRemoveChat, ID: posted.Message.ID})
	ack := mustAck(t, alice.Events, CommandRemoveChat)
	if ack.Ack.Success || ack.Error.Code != ErrCodeNotFound {
		t.Fatalf("expected not found, got %+v", ack.Error)
	}
	expectNoEvent(t, bob.Events, EventChatRemoved, 100*time.Millisecond)
}

func TestHubBroadcastsInCommitOrder(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	register(t, hub, alice, "alice")

	const n = 20
	for i := 0; i < n; i++ {
		submit(t, hub, alice, &Command{Kind: CommandCreateChat, Text: fmt.Sprintf("msg-%d", i)})
	}

	for i := 0; i < n; i++ {
		ev := mustEvent(t, bob.Events, EventNewChat)
		if want := fmt.Sprintf("msg-%d", i); ev.Message.Text != want {
			t.Fatalf("event %d: got %q want %q", i, ev.Message.Text, want)
		}
	}
}

func TestHubFindAllChatsSendsPersonalList(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandCreateChat, Text: "one"})
	mustAck(t, alice.Events, CommandCreateChat)

	submit(t, hub, alice, &Command{Kind: CommandFindAllChats})
	chats := mustEvent(t, alice.Events, EventChats)
	if len(chats.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(chats.Messages))
	}
	if ack := mustAck(t, alice.Events, CommandFindAllChats); len(ack.Messages) != 1 {
		t.Fatalf("unexpected ack data: %+v", ack.Messages)
	}
	expectNoEvent(t, bob.Events, EventChats, 100*time.Millisecond)
}

func TestHubUserQueries(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")

	submit(t, hub, alice, &Command{Kind: CommandWhoAmI})
	if ack := mustAck(t, alice.Events, CommandWhoAmI); ack.Ack.Success || ack.Error.Code != ErrCodeNotAuthenticated {
		t.Fatalf("expected not authenticated, got %+v", ack.Error)
	}

	user := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandWhoAmI})
	if ack := mustAck(t, alice.Events, CommandWhoAmI); ack.User.ID != user.ID {
		t.Fatalf("whoami returned %+v", ack.User)
	}

	submit(t, hub, alice, &Command{Kind: CommandFindAllUsers})
	if ack := mustAck(t, alice.Events, CommandFindAllUsers); len(ack.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(ack.Users))
	}

	submit(t, hub, alice, &Command{Kind: CommandFindOneUser, UserID: "nope"})
	if ack := mustAck(t, alice.Events, CommandFindOneUser); ack.Error.Code != ErrCodeNotFound {
		t.Fatalf("expected not found, got %+v", ack.Error)
	}
}

func TestHubUpdateUserColor(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	user := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandUpdateUserColor, UserID: user.ID, Color: "#abcdef"})
	ev := mustEvent(t, bob.Events, EventUserUpdated)
	if ev.User.Color != "#abcdef" {
		t.Fatalf("unexpected color %q", ev.User.Color)
	}
	mustAck(t, alice.Events, CommandUpdateUserColor)

	submit(t, hub, alice, &Command{Kind: CommandUpdateUserColor, UserID: "ghost", Color: "#abcdef"})
	failed := mustEvent(t, alice.Events, EventUpdateError)
	if failed.Error.Code != ErrCodeNotFound {
		t.Fatalf("expected not found, got %+v", failed.Error)
	}
	if ack := mustAck(t, alice.Events, CommandUpdateUserColor); ack.Ack.Success {
		t.Fatal("expected failed ack")
	}
}

func TestHubTypingTransitions(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	user := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandStartTyping})
	submit(t, hub, alice, &Command{Kind: CommandStartTyping})
	mustAck(t, alice.Events, CommandStartTyping)
	mustAck(t, alice.Events, CommandStartTyping)

	ev := mustEvent(t, bob.Events, EventUserTyping)
	if ev.UserID != user.ID || ev.UserName != "alice" {
		t.Fatalf("unexpected typing event: %+v", ev)
	}
	expectNoEvent(t, bob.Events, EventUserTyping, 100*time.Millisecond)

	if typing := hub.Presence().Typing; len(typing) != 1 || typing[0] != user.ID {
		t.Fatalf("unexpected typing set: %v", typing)
	}

	submit(t, hub, alice, &Command{Kind: CommandStopTyping})
	mustEvent(t, bob.Events, EventUserStoppedTyping)

	submit(t, hub, alice, &Command{Kind: CommandStopTyping})
	if ack := mustAck(t, alice.Events, CommandStopTyping); !ack.Ack.Success {
		t.Fatal("stop while idle should succeed")
	}
	expectNoEvent(t, bob.Events, EventUserStoppedTyping, 100*time.Millisecond)
}

func TestHubTypingRequiresAuthentication(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	anon := connect(t, hub, "anon")

	submit(t, hub, anon, &Command{Kind: CommandStartTyping})
	if ack := mustAck(t, anon.Events, CommandStartTyping); ack.Ack.Success || ack.Error.Code != ErrCodeNotAuthenticated {
		t.Fatalf("unexpected ack: %+v", ack.Error)
	}
	if len(hub.Presence().Typing) != 0 {
		t.Fatal("typing set must stay empty")
	}
}

func TestHubTypingExpires(t *testing.T) {
	hub, _, _ := startHub(t, Options{TypingTimeout: 50 * time.Millisecond})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	user := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandStartTyping})
	mustEvent(t, bob.Events, EventUserTyping)

	ev := mustEvent(t, bob.Events, EventUserStoppedTyping)
	if ev.UserID != user.ID {
		t.Fatalf("unexpected stop event: %+v", ev)
	}
	if len(hub.Presence().Typing) != 0 {
		t.Fatal("typing state should be cleared after expiry")
	}
}

func TestHubCreateChatClearsTyping(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandStartTyping})
	mustEvent(t, bob.Events, EventUserTyping)

	submit(t, hub, alice, &Command{Kind: CommandCreateChat, Text: "done typing"})
	mustEvent(t, bob.Events, EventNewChat)
	mustEvent(t, bob.Events, EventUserStoppedTyping)
}

func TestHubReauthenticationClearsTyping(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	first := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandStartTyping})
	mustEvent(t, bob.Events, EventUserTyping)

	register(t, hub, alice, "alice-2")
	ev := mustEvent(t, bob.Events, EventUserStoppedTyping)
	if ev.UserID != first.ID {
		t.Fatalf("expected %s to stop typing, got %s", first.ID, ev.UserID)
	}
}

func TestHubDisconnect(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	bob := connect(t, hub, "b")
	anon := connect(t, hub, "anon")
	user := register(t, hub, alice, "alice")

	submit(t, hub, alice, &Command{Kind: CommandStartTyping})
	mustEvent(t, bob.Events, EventUserTyping)

	hub.UnregisterClient(alice)
	stopped := mustEvent(t, bob.Events, EventUserStoppedTyping)
	left := mustEvent(t, bob.Events, EventUserLeft)
	if stopped.UserID != user.ID || left.UserID != user.ID {
		t.Fatalf("unexpected disconnect events: %+v %+v", stopped, left)
	}

	// Drain whatever is left and expect the channel to be closed.
	deadline := time.After(2 * time.Second)
	for closed := false; !closed; {
		select {
		case _, ok := <-alice.Events:
			closed = !ok
		case <-deadline:
			t.Fatal("events channel not closed")
		}
	}

	hub.UnregisterClient(anon)
	expectNoEvent(t, bob.Events, EventUserLeft, 100*time.Millisecond)

	if p := hub.Presence(); len(p.Online) != 0 || len(p.Typing) != 0 {
		t.Fatalf("unexpected presence after disconnect: %+v", p)
	}
}

func TestHubSlowClientDoesNotBlockOthers(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	alice := connect(t, hub, "a")
	register(t, hub, alice, "alice")

	slow := NewClient("slow", 1)
	hub.RegisterClient(slow)

	for i := 0; i < 10; i++ {
		submit(t, hub, alice, &Command{Kind: CommandCreateChat, Text: fmt.Sprintf("m%d", i)})
		mustAck(t, alice.Events, CommandCreateChat)
	}
}

func TestHubSubmitValidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(newFakeDirectory(), newFakeLog(newFakeDirectory()), Options{InboxSize: 1})
	go hub.Run(ctx)

	c := NewClient("c", 4)
	if err := hub.Submit(ctx, c, &Command{Kind: commandConnect}); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
	if err := hub.Submit(ctx, c, nil); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}

	cancel()
	<-hub.done
	if err := hub.Submit(context.Background(), c, &Command{Kind: CommandWhoAmI}); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}

func TestHubIgnoresCommandsFromUnknownClients(t *testing.T) {
	hub, _, _ := startHub(t, Options{})
	stranger := NewClient("stranger", 4)

	submit(t, hub, stranger, &Command{Kind: CommandWhoAmI})
	expectNoEvent(t, stranger.Events, EventAck, 100*time.Millisecond)
}
