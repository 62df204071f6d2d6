package chat

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageType represents the type of message
type MessageType int

const (
	MessageTypeText MessageType = iota
	MessageTypeJoin
	MessageTypeLeave
	MessageTypeSystem
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeText:
		return "TEXT"
	case MessageTypeJoin:
		return "JOIN"
	case MessageTypeLeave:
		return "LEAVE"
	case MessageTypeSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// parseMessageType maps unknown names to MessageTypeText.
func parseMessageType(s string) MessageType {
	switch s {
	case "JOIN":
		return MessageTypeJoin
	case "LEAVE":
		return MessageTypeLeave
	case "SYSTEM":
		return MessageTypeSystem
	default:
		return MessageTypeText
	}
}

// Message is the envelope the chat server sends to its clients.
type Message struct {
	Type    MessageType
	Sender  string
	Content string
}

// Encode renders the message as protobuf JSON. Non-ASCII characters are
// escaped, so the result always survives the Latin-1 frame encoding.
func (m *Message) Encode() (string, error) {
	st, err := structpb.NewStruct(map[string]any{
		"type":    m.Type.String(),
		"sender":  m.Sender,
		"content": m.Content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return asciiJSON(string(b)), nil
}

// Decode parses an envelope produced by Encode.
func (m *Message) Decode(data string) error {
	var st structpb.Struct
	if err := protojson.Unmarshal([]byte(data), &st); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	fields := st.GetFields()
	if _, ok := fields["type"]; !ok {
		return fmt.Errorf("failed to decode message: missing type")
	}
	m.Type = parseMessageType(fields["type"].GetStringValue())
	m.Sender = fields["sender"].GetStringValue()
	m.Content = fields["content"].GetStringValue()
	return nil
}

// String formats the message for display.
func (m *Message) String() string {
	switch m.Type {
	case MessageTypeJoin:
		return m.Sender + " has entered the chat room."
	case MessageTypeLeave:
		return m.Sender + " has left the chat room."
	case MessageTypeSystem:
		return m.Content
	default:
		return m.Sender + " says " + m.Content
	}
}

// asciiJSON replaces every non-ASCII rune with its \u escape. It is only
// valid on JSON text, where such runes can occur inside strings alone.
func asciiJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if r > 0xffff {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String()
}
