package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

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
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run logs in, posts a message, waits for its broadcast, then removes it.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "tester", "display name to log in with")
	color := flag.String("color", "#ff8800", "display color")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(intent, id string, data any) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", intent, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: intent, ID: id, Data: raw}); err != nil {
			return fmt.Errorf("send %s: %w", intent, err)
		}
		return nil
	}

	// await reads frames until want matches, printing everything it sees.
	await := func(want func(frame) bool) (frame, error) {
		for {
			var out frame
			if err := wsjson.Read(ctx, conn, &out); err != nil {
				return out, fmt.Errorf("read: %w", err)
			}
			fmt.Printf("Received: type=%s event=%s id=%s data=%s\n", out.Type, out.Event, out.ID, out.Data)
			if out.Type == proto.OutboundTypeAck && out.Success != nil && !*out.Success {
				return out, fmt.Errorf("%s failed: %s", out.Event, out.Message)
			}
			if want(out) {
				return out, nil
			}
		}
	}

	if err := send("login", "login", proto.LoginData{UserData: &proto.UserData{Name: *name, Color: *color}}); err != nil {
		return err
	}
	out, err := await(func(f frame) bool { return f.Event == proto.EventLoginSuccess })
	if err != nil {
		return err
	}
	var user proto.User
	if err := json.Unmarshal(out.Data, &user); err != nil {
		return fmt.Errorf("unmarshal user: %w", err)
	}
	fmt.Printf("Logged in: id=%s name=%s\n", user.ID, user.Name)

	if err := send("createChat", "post", proto.CreateChatData{Text: *text}); err != nil {
		return err
	}
	out, err = await(func(f frame) bool { return f.Type == proto.OutboundTypeEvent && f.Event == proto.EventNewChat })
	if err != nil {
		return err
	}
	var chat proto.Chat
	if err := json.Unmarshal(out.Data, &chat); err != nil {
		return fmt.Errorf("unmarshal chat: %w", err)
	}
	if chat.Text != *text || chat.AuthorID != user.ID {
		return errors.New("broadcast does not match the posted message")
	}
	fmt.Printf("Broadcast: id=%s author=%s text=%q\n", chat.ID, chat.Author.Name, chat.Text)

	if err := send("removeChat", "remove", proto.IDData{ID: chat.ID}); err != nil {
		return err
	}
	if _, err := await(func(f frame) bool { return f.Event == proto.EventChatRemoved }); err != nil {
		return err
	}

	fmt.Println("smoke test passed")
	return nil
}
