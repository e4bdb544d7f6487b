package baileys

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
)

const (
	ProviderID = "baileys"

	EventMessagesUpsert = "messages.upsert"
	UpsertTypeNotify    = "notify"

	serverLID       = "lid"
	serverPhone     = "s.whatsapp.net"
	serverLegacy    = "c.us"
	serverGroup     = "g.us"
	serverBroadcast = "broadcast"

	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// ErrIgnoredChat marks messages from chats the inbox does not track, such as
// groups and status broadcasts.
var ErrIgnoredChat = errors.New("providers/baileys: chat is not tracked")

type Envelope struct {
	WebhookVerifyToken string       `json:"webhookVerifyToken"`
	Event              string       `json:"event"`
	Data               EnvelopeData `json:"data"`
}

// EnvelopeData keeps messages undecoded so one bad entry does not fail the
// batch. Use DecodeMessage per entry.
type EnvelopeData struct {
	Type     string            `json:"type"`
	Messages []json.RawMessage `json:"messages"`
}

// Processable reports whether the envelope carries new inbound messages.
func (e Envelope) Processable() bool {
	return strings.TrimSpace(e.Event) == EventMessagesUpsert &&
		strings.TrimSpace(e.Data.Type) == UpsertTypeNotify
}

type MessageKey struct {
	ID             string `json:"id"`
	RemoteJID      string `json:"remoteJid"`
	RemoteJIDAlt   string `json:"remoteJidAlt"`
	FromMe         bool   `json:"fromMe"`
	AddressingMode string `json:"addressingMode"`
	Participant    string `json:"participant"`
}

type RawMessage struct {
	Key              MessageKey     `json:"key"`
	PushName         string         `json:"pushName"`
	MessageTimestamp Timestamp      `json:"messageTimestamp"`
	Message          map[string]any `json:"message"`
}

// Timestamp is a unix seconds value that Baileys may send as a number, a
// numeric string, or a protobuf Long {low, high}.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = 0
		return nil
	}
	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*t = 0
			return nil
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("providers/baileys: invalid timestamp %q", raw)
		}
		*t = Timestamp(value)
		return nil
	case '{':
		var long struct {
			Low  int64 `json:"low"`
			High int64 `json:"high"`
		}
		if err := json.Unmarshal(data, &long); err != nil {
			return err
		}
		*t = Timestamp(long.High<<32 | (long.Low & 0xffffffff))
		return nil
	default:
		var value json.Number
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		parsed, err := value.Int64()
		if err != nil {
			floatValue, floatErr := value.Float64()
			if floatErr != nil {
				return fmt.Errorf("providers/baileys: invalid timestamp %s", value)
			}
			parsed = int64(floatValue)
		}
		*t = Timestamp(parsed)
		return nil
	}
}

func (t Timestamp) Time() time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0).UTC()
}

// ParseBatch decodes a webhook body.
func ParseBatch(body []byte) (Envelope, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Envelope{}, fmt.Errorf("providers/baileys: empty webhook body")
	}
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("providers/baileys: decode webhook body: %w", err)
	}
	return envelope, nil
}

// DecodeMessage decodes one entry of data.messages.
func DecodeMessage(data json.RawMessage) (RawMessage, error) {
	var raw RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawMessage{}, fmt.Errorf("providers/baileys: decode message: %w", err)
	}
	return raw, nil
}

// messageIDHint pulls key.id out of an entry that failed to decode, for logs.
func messageIDHint(data json.RawMessage) string {
	var hint struct {
		Key struct {
			ID any `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(data, &hint); err != nil || hint.Key.ID == nil {
		return ""
	}
	return fmt.Sprint(hint.Key.ID)
}

// Normalize maps a raw message onto an IncomingEvent. Group and broadcast
// chats return ErrIgnoredChat; unusable addresses return a
// *core.MalformedEventError.
func Normalize(raw RawMessage) (core.IncomingEvent, error) {
	messageID := strings.TrimSpace(raw.Key.ID)
	remote := strings.TrimSpace(raw.Key.RemoteJID)
	if isIgnoredJID(remote) {
		return core.IncomingEvent{}, fmt.Errorf("%w: %s", ErrIgnoredChat, remote)
	}

	primary, err := ParseJID(remote)
	if err != nil {
		return core.IncomingEvent{}, &core.MalformedEventError{MessageID: messageID, Reason: err.Error()}
	}
	alternate := core.Address{}
	if alt := strings.TrimSpace(raw.Key.RemoteJIDAlt); alt != "" {
		// An unusable alternate degrades to a primary-only event.
		if parsed, altErr := ParseJID(alt); altErr == nil && parsed.Kind != primary.Kind {
			alternate = parsed
		}
	}

	body, attributes := extractBody(raw.Message)
	event := core.IncomingEvent{
		MessageID:         messageID,
		Primary:           primary,
		Alternate:         alternate,
		AddressingMode:    addressingMode(raw.Key.AddressingMode, primary),
		Timestamp:         raw.MessageTimestamp.Time(),
		SenderName:        strings.TrimSpace(raw.PushName),
		Body:              body,
		FromMe:            raw.Key.FromMe,
		ContentAttributes: attributes,
	}
	if err := event.Validate(); err != nil {
		return core.IncomingEvent{}, err
	}
	return event, nil
}

// ParseJID classifies a WhatsApp JID by server suffix and strips any device
// suffix from the user part.
func ParseJID(jid string) (core.Address, error) {
	jid = strings.TrimSpace(jid)
	user, server, ok := strings.Cut(jid, "@")
	if !ok || user == "" {
		return core.Address{}, fmt.Errorf("jid %q has no server", jid)
	}
	if device := strings.IndexByte(user, ':'); device >= 0 {
		user = user[:device]
	}
	if !allDigits(user) {
		return core.Address{}, fmt.Errorf("jid %q user %q is not numeric", jid, user)
	}
	switch strings.ToLower(server) {
	case serverLID:
		return core.LIDAddress(user), nil
	case serverPhone, serverLegacy:
		if len(user) < minPhoneDigits || len(user) > maxPhoneDigits {
			return core.Address{}, fmt.Errorf("jid %q phone must have %d-%d digits", jid, minPhoneDigits, maxPhoneDigits)
		}
		return core.PhoneAddress(user), nil
	default:
		return core.Address{}, fmt.Errorf("jid %q has unsupported server %q", jid, server)
	}
}

// JID renders an address in the form Baileys expects.
func JID(address core.Address) string {
	if address.IsZero() {
		return ""
	}
	if address.Kind == core.AddressKindLID {
		return address.Value + "@" + serverLID
	}
	return address.Value + "@" + serverPhone
}

func isIgnoredJID(jid string) bool {
	lowered := strings.ToLower(jid)
	return strings.HasSuffix(lowered, "@"+serverGroup) ||
		strings.HasSuffix(lowered, "@"+serverBroadcast)
}

func addressingMode(raw string, primary core.Address) core.AddressingMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(core.AddressingModeLID):
		return core.AddressingModeLID
	case string(core.AddressingModePhone):
		return core.AddressingModePhone
	}
	if primary.Kind == core.AddressKindLID {
		return core.AddressingModeLID
	}
	return core.AddressingModePhone
}

var captionedMessages = []string{"imageMessage", "videoMessage", "documentMessage", "documentWithCaptionMessage"}

func extractBody(message map[string]any) (string, map[string]any) {
	attributes := map[string]any{}
	if len(message) == 0 {
		return "", attributes
	}
	if text, ok := message["conversation"].(string); ok && strings.TrimSpace(text) != "" {
		return text, attributes
	}
	if extended, ok := message["extendedTextMessage"].(map[string]any); ok {
		if text, ok := extended["text"].(string); ok && strings.TrimSpace(text) != "" {
			return text, attributes
		}
	}
	for _, key := range captionedMessages {
		media, ok := message[key].(map[string]any)
		if !ok {
			continue
		}
		attributes["media_type"] = key
		if nested, ok := media["message"].(map[string]any); ok {
			if document, ok := nested["documentMessage"].(map[string]any); ok {
				media = document
			}
		}
		if caption, ok := media["caption"].(string); ok {
			return caption, attributes
		}
		return "", attributes
	}

	attributes["is_unsupported"] = true
	for _, key := range slices.Sorted(maps.Keys(message)) {
		if key == "messageContextInfo" {
			continue
		}
		attributes["message_type"] = key
		break
	}
	return "", attributes
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
