package http

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/NicolasFrouin/chat/internal/core"
	"github.com/NicolasFrouin/chat/internal/proto"
	"github.com/NicolasFrouin/chat/internal/store"
)

// errUnknownType is returned for inbound messages naming no known intent.
var errUnknownType = errors.New("unknown message type")

// inboundToCommand decodes an inbound envelope. When the intent is known but
// its payload is invalid, the partially built command is returned alongside
// the error so the caller can acknowledge it.
func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	kind, ok := core.ParseCommandKind(inbound.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownType, inbound.Type)
	}
	cmd := &core.Command{Kind: kind, RequestID: inbound.ID}

	switch kind {
	case core.CommandCreateUser:
		var data proto.UserData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.Profile = profileFromData(&data)
	case core.CommandLogin:
		var data proto.LoginData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.UserID = data.UserID
		cmd.Profile = profileFromData(data.UserData)
	case core.CommandCreateChat:
		var data proto.CreateChatData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.Text = data.Text
	case core.CommandUpdateChat:
		var data proto.UpdateChatData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.ID = data.ID
		cmd.Text = data.Text
	case core.CommandRemoveChat, core.CommandFindOneChat:
		var data proto.IDData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.ID = data.ID
	case core.CommandFindOneUser:
		var data proto.IDData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.UserID = data.ID
	case core.CommandUpdateUserColor:
		var data proto.UpdateUserColorData
		if err := proto.Decode(inbound.Data, &data); err != nil {
			return cmd, err
		}
		cmd.UserID = data.UserID
		cmd.Color = data.Color
	case core.CommandFindAllChats, core.CommandFindAllUsers, core.CommandWhoAmI,
		core.CommandStartTyping, core.CommandStopTyping:
		// No payload.
	}

	return cmd, nil
}

func profileFromData(data *proto.UserData) *store.Profile {
	if data == nil {
		return nil
	}
	return &store.Profile{Name: data.Name, Color: data.Color, Image: data.Image}
}

func userToProto(u *store.User) proto.User {
	return proto.User{ID: u.ID, Name: u.Name, Color: u.Color, Image: u.Image}
}

func usersToProto(users []*store.User) []proto.User {
	return lo.Map(users, func(u *store.User, _ int) proto.User {
		return userToProto(u)
	})
}

func chatToProto(m *store.Message) proto.Chat {
	return proto.Chat{
		ID:        m.ID,
		Text:      m.Text,
		AuthorID:  m.AuthorID,
		Author:    userToProto(&m.Author),
		CreatedAt: m.CreatedAt,
		Modified:  m.Modified,
	}
}

func chatsToProto(msgs []*store.Message) []proto.Chat {
	return lo.Map(msgs, func(m *store.Message, _ int) proto.Chat {
		return chatToProto(m)
	})
}

func event(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func errorEvent(name string, err *core.CoreError) proto.Outbound {
	if err == nil {
		return event(name, proto.Error{Message: core.MsgInternal, Code: core.ErrCodeInternal})
	}
	return event(name, proto.Error{Message: err.Message, Code: err.Code})
}

// failedAck answers a command the transport rejected before reaching the hub.
func failedAck(cmd *core.Command, code, message string) proto.Outbound {
	return proto.Outbound{
		Type:    proto.OutboundTypeAck,
		ID:      cmd.RequestID,
		Event:   cmd.Kind.String(),
		Success: lo.ToPtr(false),
		Message: message,
		Code:    code,
	}
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventChats:
		return event(proto.EventChats, chatsToProto(ev.Messages))
	case core.EventNewChat:
		return event(proto.EventNewChat, chatToProto(ev.Message))
	case core.EventChatUpdated:
		return event(proto.EventChatUpdated, chatToProto(ev.Message))
	case core.EventChatRemoved:
		return event(proto.EventChatRemoved, proto.ChatRemoved{ID: ev.MessageID})
	case core.EventUserCreated:
		return event(proto.EventUserCreated, userToProto(ev.User))
	case core.EventLoginSuccess:
		return event(proto.EventLoginSuccess, userToProto(ev.User))
	case core.EventLoginError:
		return errorEvent(proto.EventLoginError, ev.Error)
	case core.EventNewUser:
		return event(proto.EventNewUser, userToProto(ev.User))
	case core.EventUserJoined:
		return event(proto.EventUserJoined, userToProto(ev.User))
	case core.EventUserLeft:
		return event(proto.EventUserLeft, proto.UserLeft{UserID: ev.UserID})
	case core.EventUserTyping:
		return event(proto.EventUserTyping, proto.UserTyping{UserID: ev.UserID, UserName: ev.UserName})
	case core.EventUserStoppedTyping:
		return event(proto.EventUserStoppedTyping, proto.UserStoppedTyping{UserID: ev.UserID})
	case core.EventUserUpdated:
		return event(proto.EventUserUpdated, userToProto(ev.User))
	case core.EventUpdateError:
		return errorEvent(proto.EventUpdateError, ev.Error)
	case core.EventError:
		return errorEvent(proto.EventError, ev.Error)
	case core.EventAck:
		return ackFromEvent(ev)
	default:
		return errorEvent(proto.EventError, nil)
	}
}

func ackFromEvent(ev *core.Event) proto.Outbound {
	out := proto.Outbound{
		Type:    proto.OutboundTypeAck,
		ID:      ev.Ack.RequestID,
		Event:   ev.Ack.Command.String(),
		Success: lo.ToPtr(ev.Ack.Success),
	}
	if !ev.Ack.Success {
		if ev.Error != nil {
			out.Message = ev.Error.Message
			out.Code = ev.Error.Code
		}
		return out
	}

	switch {
	case ev.Message != nil:
		out.Data = chatToProto(ev.Message)
	case ev.Messages != nil:
		out.Data = chatsToProto(ev.Messages)
	case ev.User != nil:
		out.Data = userToProto(ev.User)
	case ev.Users != nil:
		out.Data = usersToProto(ev.Users)
	}
	return out
}
