package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NicolasFrouin/chat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustAck waits for the acknowledgement of a command kind.
func mustAck(t *testing.T, ch <-chan *Event, kind CommandKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == EventAck && ev.Ack.Command == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected ack for %s not received", kind)
	return nil
}

// expectNoEvent drains ch for wait and fails if kind shows up.
func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		case <-timer.C:
			return
		}
	}
}

func startHub(t *testing.T, opts Options) (*Hub, *fakeDirectory, *fakeLog) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	dir := newFakeDirectory()
	msgs := newFakeLog(dir)
	hub := NewHub(dir, msgs, opts)
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub, dir, msgs
}

// connect registers a client and consumes its initial chats event.
func connect(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()

	c := NewClient(id, 64)
	hub.RegisterClient(c)
	mustEvent(t, c.Events, EventChats)
	return c
}

func submit(t *testing.T, hub *Hub, c *Client, cmd *Command) {
	t.Helper()

	if err := hub.Submit(context.Background(), c, cmd); err != nil {
		t.Fatalf("submit %s: %v", cmd.Kind, err)
	}
}

// register creates an identity over the client's connection.
func register(t *testing.T, hub *Hub, c *Client, name string) *store.User {
	t.Helper()

	submit(t, hub, c, &Command{Kind: CommandCreateUser, Profile: &store.Profile{Name: name, Color: "#336699"}})
	ack := mustAck(t, c.Events, CommandCreateUser)
	if !ack.Ack.Success || ack.User == nil {
		t.Fatalf("register %s failed: %+v", name, ack.Error)
	}
	return ack.User
}

type fakeDirectory struct {
	mu    sync.Mutex
	users []*store.User
	seq   int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{}
}

func (d *fakeDirectory) Create(_ context.Context, profile store.Profile) (*store.User, error) {
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	user := &store.User{ID: fmt.Sprintf("u%d", d.seq), Name: name, Color: profile.Color, Image: profile.Image}
	d.users = append(d.users, user)
	return user, nil
}

func (d *fakeDirectory) Get(_ context.Context, id string) (*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user with id %s: %w", id, store.ErrNotFound)
}

func (d *fakeDirectory) FindByName(_ context.Context, name string) (*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user named %s: %w", name, store.ErrNotFound)
}

func (d *fakeDirectory) List(_ context.Context) ([]*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*store.User(nil), d.users...), nil
}

func (d *fakeDirectory) UpdateColor(_ context.Context, id, color string) (*store.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, u := range d.users {
		if u.ID == id {
			updated := *u
			updated.Color = color
			d.users[i] = &updated
			return &updated, nil
		}
	}
	return nil, fmt.Errorf("user with id %s: %w", id, store.ErrNotFound)
}

type fakeLog struct {
	mu       sync.Mutex
	dir      *fakeDirectory
	messages []*store.Message
	seq      int
	listErr  error
}

func newFakeLog(dir *fakeDirectory) *fakeLog {
	return &fakeLog{dir: dir}
}

func (l *fakeLog) Post(ctx context.Context, authorID, text string) (*store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidationFailed)
	}
	author, err := l.dir.Get(ctx, authorID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	msg := &store.Message{ID: fmt.Sprintf("m%d", l.seq), Text: text, AuthorID: authorID, Author: *author, CreatedAt: time.Now()}
	l.messages = append(l.messages, msg)
	return msg, nil
}

func (l *fakeLog) Get(_ context.Context, id string) (*store.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}

func (l *fakeLog) List(_ context.Context) ([]*store.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	return append([]*store.Message(nil), l.messages...), nil
}

func (l *fakeLog) Edit(_ context.Context, id, text string) (*store.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.messages {
		if m.ID == id {
			updated := *m
			updated.Text = text
			updated.Modified = true
			l.messages[i] = &updated
			return &updated, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}

func (l *fakeLog) Remove(_ context.Context, id string) (*store.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.messages {
		if m.ID == id {
			l.messages = append(l.messages[:i], l.messages[i+1:]...)
			return m, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
}
