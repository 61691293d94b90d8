package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/NicolasFrouin/chat/internal/proto"
)

// frame is an outbound envelope with its payload left raw.
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "cli-user", "display name")
	color := flag.String("color", "#3366ff", "display color")
	userID := flag.String("user-id", "", "existing user id to log in with")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, "login", proto.LoginData{
		UserID:   *userID,
		UserData: &proto.UserData{Name: *name, Color: *color},
	}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *name)
	fmt.Println("Type messages and press Enter to send. Commands: /edit <id> <text>, /rm <id>, /color <hex>, /users, /whoami. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

var requestSeq int

// self is the id the server assigned on login.
var self struct {
	mu sync.Mutex
	id string
}

func selfID() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.id
}

func send(ctx context.Context, conn *websocket.Conn, intent string, data any) error {
	requestSeq++
	in := proto.Inbound{Type: intent, ID: fmt.Sprint(requestSeq)}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", intent, err)
		}
		in.Data = raw
	}
	if err := wsjson.Write(ctx, conn, in); err != nil {
		return fmt.Errorf("send %s: %w", intent, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	users := make(map[string]string)

	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeAck {
			switch {
			case out.Success != nil && !*out.Success:
				fmt.Printf("! %s failed: %s\n", out.Event, out.Message)
			case out.Event == "findAllUsers" || out.Event == "whoami":
				fmt.Printf("%s: %s\n", out.Event, out.Data)
			}
			continue
		}

		switch out.Event {
		case proto.EventChats:
			var chats []proto.Chat
			if err := json.Unmarshal(out.Data, &chats); err != nil {
				log.Printf("unmarshal chats: %v", err)
				continue
			}
			for _, c := range chats {
				printChat(c)
			}
		case proto.EventNewChat, proto.EventChatUpdated:
			var c proto.Chat
			if err := json.Unmarshal(out.Data, &c); err != nil {
				log.Printf("unmarshal chat: %v", err)
				continue
			}
			printChat(c)
		case proto.EventChatRemoved:
			var evt proto.ChatRemoved
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("* message %s removed\n", evt.ID)
			}
		case proto.EventLoginSuccess, proto.EventUserJoined, proto.EventNewUser, proto.EventUserUpdated:
			var u proto.User
			if err := json.Unmarshal(out.Data, &u); err != nil {
				log.Printf("unmarshal user: %v", err)
				continue
			}
			users[u.ID] = u.Name
			if out.Event == proto.EventLoginSuccess {
				self.mu.Lock()
				self.id = u.ID
				self.mu.Unlock()
			}
			fmt.Printf("* %s: %s (%s)\n", out.Event, u.Name, u.ID)
		case proto.EventUserLeft:
			var evt proto.UserLeft
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("* %s left\n", nameOf(users, evt.UserID))
			}
		case proto.EventUserTyping:
			var evt proto.UserTyping
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("* %s is typing...\n", evt.UserName)
			}
		case proto.EventUserStoppedTyping:
			// Too noisy for a terminal.
		case proto.EventLoginError, proto.EventUpdateError, proto.EventError:
			var evt proto.Error
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("! %s: %s\n", out.Event, evt.Message)
			}
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func printChat(c proto.Chat) {
	edited := ""
	if c.Modified {
		edited = " (edited)"
	}
	fmt.Printf("[%s] %s: %s%s  #%s\n", c.CreatedAt.Format("15:04:05"), c.Author.Name, c.Text, edited, c.ID)
}

func nameOf(users map[string]string, id string) string {
	if name, ok := users[id]; ok {
		return name
	}
	return id
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := dispatch(ctx, conn, text); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func dispatch(ctx context.Context, conn *websocket.Conn, text string) error {
	if !strings.HasPrefix(text, "/") {
		return send(ctx, conn, "createChat", proto.CreateChatData{Text: text})
	}

	cmd, rest, _ := strings.Cut(text, " ")
	switch cmd {
	case "/edit":
		id, body, _ := strings.Cut(rest, " ")
		return send(ctx, conn, "updateChat", proto.UpdateChatData{ID: id, Text: body})
	case "/rm":
		return send(ctx, conn, "removeChat", proto.IDData{ID: rest})
	case "/color":
		id := selfID()
		if id == "" {
			fmt.Println("not logged in yet")
			return nil
		}
		return send(ctx, conn, "updateUserColor", proto.UpdateUserColorData{UserID: id, Color: rest})
	case "/users":
		return send(ctx, conn, "findAllUsers", nil)
	case "/whoami":
		return send(ctx, conn, "whoami", nil)
	default:
		fmt.Printf("unknown command %s\n", cmd)
		return nil
	}
}
