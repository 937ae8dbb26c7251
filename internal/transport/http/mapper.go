package http

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/deltadefenders/farmchat-server/internal/core"
	"github.com/deltadefenders/farmchat-server/internal/proto"
	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
	"github.com/deltadefenders/farmchat-server/internal/service/messages"
	"github.com/deltadefenders/farmchat-server/internal/store"
)

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID           string       `json:"id"`
	Participants []proto.User `json:"participants"`
	LastMessage  *string      `json:"lastMessage"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		conversationID, ok := decodeConversationRef(inbound.Data)
		if !ok {
			return nil, badRequest("invalid payload")
		}
		kind := core.CommandJoinConversation
		if inbound.Type == proto.InboundTypeLeave {
			kind = core.CommandLeaveConversation
		}
		return &core.Command{Kind: kind, ConversationID: conversationID}, nil
	case proto.InboundTypeSend:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, badRequest("invalid payload")
		}
		return &core.Command{
			Kind:           core.CommandSendMessage,
			ConversationID: msg.ConversationID,
			Content:        msg.Content,
		}, nil
	default:
		return nil, badRequest("unknown message type")
	}
}

// decodeConversationRef accepts either {"conversationId": "..."} or a bare JSON string.
func decodeConversationRef(data json.RawMessage) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", false
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return "", false
		}
		return id, true
	}
	var ref proto.ConversationRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", false
	}
	return ref.ConversationID, true
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoinedConversation, core.EventLeftConversation:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.ConversationRef{ConversationID: event.ConversationID},
		}
	case core.EventNewMessage, core.EventMessageDeleted:
		if event.Message == nil {
			return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  messageToProto(event.Message),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func userToProto(u store.UserSummary) proto.User {
	return proto.User{ID: u.ID, Name: u.Name, Email: u.Email}
}

func messageToProto(m *messages.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         userToProto(m.Sender),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

func conversationToResponse(conv *conversations.Conversation) ConversationResponse {
	participants := make([]proto.User, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		participants = append(participants, userToProto(p))
	}
	return ConversationResponse{
		ID:           conv.ID,
		Participants: participants,
		LastMessage:  conv.LastMessageID,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
}
