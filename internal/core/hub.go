package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/NicolasFrouin/chat/internal/store"
)

var (
	// ErrHubStopped is returned when the hub no longer accepts work.
	ErrHubStopped = errors.New("hub stopped")
	// ErrInvalidCommand is returned for nil or internal commands submitted from outside.
	ErrInvalidCommand = errors.New("invalid command")
)

// Options tunes the hub.
type Options struct {
	// InboxSize bounds the queue of pending commands.
	InboxSize int
	// TypingTimeout clears typing state server-side after a quiet period.
	// Zero leaves expiry to the clients.
	TypingTimeout time.Duration
	Logger        *zerolog.Logger
}

type envelope struct {
	client *Client
	cmd    *Command
}

// Hub owns the connection registry and typing state and is the only
// component that emits events to clients.
//
// All commands, connects and disconnects are processed by a single goroutine
// in submission order, so every mutation is followed by its broadcast before
// the next command runs. Delivery is best effort: an event is dropped for a
// client whose buffer is full.
type Hub struct {
	directory Directory
	messages  MessageLog
	registry  *Registry
	typing    *TypingTracker
	log       *zerolog.Logger

	inbox   chan envelope
	done    chan struct{}
	clients map[string]*Client
}

// NewHub creates a new chat hub instance.
func NewHub(directory Directory, messages MessageLog, opts Options) *Hub {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	h := &Hub{
		directory: directory,
		messages:  messages,
		registry:  NewRegistry(),
		log:       logger,
		inbox:     make(chan envelope, opts.InboxSize),
		done:      make(chan struct{}),
		clients:   make(map[string]*Client),
	}
	h.typing = NewTypingTracker(opts.TypingTimeout, h.typingExpired)
	return h
}

// Run processes commands until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case env := <-h.inbox:
			h.handle(ctx, env)
		case <-ctx.Done():
			h.log.Debug().Msg("hub stopped")
			return
		}
	}
}

// RegisterClient queues a newly opened connection.
func (h *Hub) RegisterClient(client *Client) {
	if err := h.enqueue(context.Background(), envelope{client: client, cmd: &Command{Kind: commandConnect}}); err != nil {
		h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("register client")
	}
}

// UnregisterClient queues the close of a connection. Commands the client
// submitted before are still processed.
func (h *Hub) UnregisterClient(client *Client) {
	if err := h.enqueue(context.Background(), envelope{client: client, cmd: &Command{Kind: commandDisconnect}}); err != nil {
		h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("unregister client")
	}
}

// Submit queues a client command. It blocks while the inbox is full.
func (h *Hub) Submit(ctx context.Context, client *Client, cmd *Command) error {
	if client == nil || cmd == nil || cmd.Kind >= commandConnect {
		return ErrInvalidCommand
	}
	return h.enqueue(ctx, envelope{client: client, cmd: cmd})
}

// Presence is a snapshot of who is online and who is typing.
type Presence struct {
	Online      []string
	Typing      []string
	Connections int
}

// Presence returns a snapshot safe to call from any goroutine.
func (h *Hub) Presence() Presence {
	return Presence{
		Online:      h.registry.OnlineUsers(),
		Typing:      h.typing.Typing(),
		Connections: h.registry.Len(),
	}
}

func (h *Hub) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.inbox <- env:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) typingExpired(userID string, generation uint64) {
	_ = h.enqueue(context.Background(), envelope{cmd: &Command{
		Kind:       commandTypingExpired,
		UserID:     userID,
		generation: generation,
	}})
}

func (h *Hub) handle(ctx context.Context, env envelope) {
	client, cmd := env.client, env.cmd

	switch cmd.Kind {
	case commandConnect:
		h.handleConnect(ctx, client)
		return
	case commandDisconnect:
		h.handleDisconnect(client)
		return
	case commandTypingExpired:
		if h.typing.Expire(cmd.UserID, cmd.generation) {
			h.log.Debug().Str("user_id", cmd.UserID).Msg("typing expired")
			h.broadcast(&Event{Kind: EventUserStoppedTyping, UserID: cmd.UserID})
		}
		return
	}

	if _, ok := h.clients[client.ID]; !ok {
		h.log.Debug().Str("conn_id", client.ID).Stringer("command", cmd.Kind).Msg("dropping command from unknown client")
		return
	}

	var (
		reply *Event
		err   error
	)
	switch cmd.Kind {
	case CommandCreateUser:
		reply, err = h.createUser(ctx, client, cmd)
	case CommandLogin:
		reply, err = h.login(ctx, client, cmd)
	case CommandCreateChat:
		reply, err = h.createChat(ctx, client, cmd)
	case CommandUpdateChat:
		reply, err = h.updateChat(ctx, cmd)
	case CommandRemoveChat:
		reply, err = h.removeChat(ctx, cmd)
	case CommandFindAllChats:
		reply, err = h.findAllChats(ctx, client)
	case CommandFindOneChat:
		reply, err = h.findOneChat(ctx, cmd)
	case CommandFindAllUsers:
		reply, err = h.findAllUsers(ctx)
	case CommandFindOneUser:
		reply, err = h.findOneUser(ctx, cmd)
	case CommandWhoAmI:
		reply, err = h.whoAmI(ctx, client)
	case CommandUpdateUserColor:
		reply, err = h.updateUserColor(ctx, client, cmd)
	case CommandStartTyping:
		reply, err = h.startTyping(ctx, client)
	case CommandStopTyping:
		reply, err = h.stopTyping(client)
	default:
		err = coreError(ErrCodeBadRequest, "unknown command")
	}

	h.acknowledge(client, cmd, reply, err)
}

func (h *Hub) handleConnect(ctx context.Context, client *Client) {
	h.clients[client.ID] = client
	h.log.Info().Str("conn_id", client.ID).Int("clients", len(h.clients)).Msg("client connected")

	messages, err := h.messages.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("load initial chats")
		h.deliver(client, &Event{Kind: EventError, Error: classify(err)})
		return
	}
	h.deliver(client, &Event{Kind: EventChats, Messages: messages})
}

func (h *Hub) handleDisconnect(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Events)

	for _, userID := range h.typing.StopOwnedBy(client.ID) {
		h.broadcast(&Event{Kind: EventUserStoppedTyping, UserID: userID})
	}

	userID, ok := h.registry.Unregister(client.ID)
	if ok {
		h.broadcast(&Event{Kind: EventUserLeft, UserID: userID})
	}
	h.log.Info().Str("conn_id", client.ID).Str("user_id", userID).Int("clients", len(h.clients)).Msg("client disconnected")
}

func (h *Hub) createUser(ctx context.Context, client *Client, cmd *Command) (*Event, error) {
	if cmd.Profile == nil {
		err := fmt.Errorf("%w: user data is required", ErrValidationFailed)
		h.deliver(client, &Event{Kind: EventLoginError, Error: classify(err)})
		return nil, err
	}

	user, err := h.directory.Create(ctx, *cmd.Profile)
	if err != nil {
		h.deliver(client, &Event{Kind: EventLoginError, Error: classify(err)})
		return nil, err
	}

	h.bind(client, user.ID)
	h.deliver(client, &Event{Kind: EventUserCreated, User: user})
	h.broadcast(&Event{Kind: EventNewUser, User: user})
	return &Event{User: user}, nil
}

func (h *Hub) login(ctx context.Context, client *Client, cmd *Command) (*Event, error) {
	user, err := h.resolveLogin(ctx, cmd)
	if err != nil {
		h.deliver(client, &Event{Kind: EventLoginError, Error: classify(err)})
		return nil, err
	}

	h.bind(client, user.ID)
	h.deliver(client, &Event{Kind: EventLoginSuccess, User: user})
	h.broadcast(&Event{Kind: EventUserJoined, User: user})
	return &Event{User: user}, nil
}

// resolveLogin finds the identity for a login: by id, then by exact name,
// then by creating one from the supplied profile.
func (h *Hub) resolveLogin(ctx context.Context, cmd *Command) (*store.User, error) {
	if cmd.UserID != "" {
		user, err := h.directory.Get(ctx, cmd.UserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	if cmd.Profile == nil {
		return nil, ErrAuthenticationFailed
	}

	if name := strings.TrimSpace(cmd.Profile.Name); name != "" {
		user, err := h.directory.FindByName(ctx, name)
		if err == nil {
			// Profile changes on name match are not applied.
			if cmd.Profile.Color != "" && !strings.EqualFold(cmd.Profile.Color, user.Color) {
				h.log.Debug().Str("user_id", user.ID).Str("color", cmd.Profile.Color).Msg("login by name ignores color change")
			}
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return h.directory.Create(ctx, *cmd.Profile)
}

// bind associates the connection with userID. Typing state the connection
// held for a previous identity is cleared.
func (h *Hub) bind(client *Client, userID string) {
	previous, replaced := h.registry.Register(client.ID, userID)
	if !replaced || previous == userID {
		return
	}
	for _, stopped := range h.typing.StopOwnedBy(client.ID) {
		h.broadcast(&Event{Kind: EventUserStoppedTyping, UserID: stopped})
	}
}

func (h *Hub) createChat(ctx context.Context, client *Client, cmd *Command) (*Event, error) {
	userID, ok := h.registry.Resolve(client.ID)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	msg, err := h.messages.Post(ctx, userID, cmd.Text)
	if err != nil {
		return nil, err
	}

	h.broadcast(&Event{Kind: EventNewChat, Message: msg})
	if h.typing.Stop(userID) {
		h.broadcast(&Event{Kind: EventUserStoppedTyping, UserID: userID})
	}
	return &Event{Message: msg}, nil
}

func (h *Hub) updateChat(ctx context.Context, cmd *Command) (*Event, error) {
	msg, err := h.messages.Edit(ctx, cmd.ID, cmd.Text)
	if err != nil {
		return nil, err
	}

	h.broadcast(&Event{Kind: EventChatUpdated, Message: msg})
	return &Event{Message: msg}, nil
}

func (h *Hub) removeChat(ctx context.Context, cmd *Command) (*Event, error) {
	msg, err := h.messages.Remove(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	h.broadcast(&Event{Kind: EventChatRemoved, MessageID: msg.ID})
	return &Event{Message: msg}, nil
}

func (h *Hub) findAllChats(ctx context.Context, client *Client) (*Event, error) {
	messages, err := h.messages.List(ctx)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*store.Message{}
	}

	h.deliver(client, &Event{Kind: EventChats, Messages: messages})
	return &Event{Messages: messages}, nil
}

func (h *Hub) findOneChat(ctx context.Context, cmd *Command) (*Event, error) {
	msg, err := h.messages.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	return &Event{Message: msg}, nil
}

func (h *Hub) findAllUsers(ctx context.Context) (*Event, error) {
	users, err := h.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*store.User{}
	}
	return &Event{Users: users}, nil
}

func (h *Hub) findOneUser(ctx context.Context, cmd *Command) (*Event, error) {
	user, err := h.directory.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	return &Event{User: user}, nil
}

func (h *Hub) whoAmI(ctx context.Context, client *Client) (*Event, error) {
	userID, ok := h.registry.Resolve(client.ID)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	user, err := h.directory.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Event{User: user}, nil
}

func (h *Hub) updateUserColor(ctx context.Context, client *Client, cmd *Command) (*Event, error) {
	user, err := h.directory.UpdateColor(ctx, cmd.UserID, cmd.Color)
	if err != nil {
		h.deliver(client, &Event{Kind: EventUpdateError, Error: classify(err)})
		return nil, err
	}

	h.broadcast(&Event{Kind: EventUserUpdated, User: user})
	return &Event{User: user}, nil
}

func (h *Hub) startTyping(ctx context.Context, client *Client) (*Event, error) {
	userID, ok := h.registry.Resolve(client.ID)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	user, err := h.directory.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if h.typing.Start(userID, client.ID) {
		h.broadcast(&Event{Kind: EventUserTyping, UserID: userID, UserName: user.Name})
	}
	return &Event{}, nil
}

func (h *Hub) stopTyping(client *Client) (*Event, error) {
	userID, ok := h.registry.Resolve(client.ID)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	if h.typing.Stop(userID) {
		h.broadcast(&Event{Kind: EventUserStoppedTyping, UserID: userID})
	}
	return &Event{}, nil
}

// acknowledge sends the per-command reply to the originating client.
func (h *Hub) acknowledge(client *Client, cmd *Command, reply *Event, err error) {
	if reply == nil {
		reply = &Event{}
	}
	reply.Kind = EventAck
	reply.Ack = &Ack{RequestID: cmd.RequestID, Command: cmd.Kind, Success: err == nil}

	if err != nil {
		reply.Error = classify(err)
		logEvent := h.log.Debug()
		if reply.Error.Code == ErrCodeInternal {
			logEvent = h.log.Error()
		}
		logEvent.Err(err).Str("conn_id", client.ID).Stringer("command", cmd.Kind).Msg("command failed")
	}

	h.deliver(client, reply)
}

func (h *Hub) broadcast(event *Event) {
	for _, client := range h.clients {
		h.deliver(client, event)
	}
}

func (h *Hub) deliver(client *Client, event *Event) {
	select {
	case client.Events <- event:
	default:
		// Drop if slow consumer.
		h.log.Debug().Str("conn_id", client.ID).Int("event", int(event.Kind)).Msg("client buffer full, dropping event")
	}
}
