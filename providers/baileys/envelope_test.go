package baileys

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/core"
)

func TestParseJID(t *testing.T) {
	cases := []struct {
		name    string
		jid     string
		want    core.Address
		wantErr bool
	}{
		{name: "lid", jid: "12345678@lid", want: core.LIDAddress("12345678")},
		{name: "phone", jid: "5511912345678@s.whatsapp.net", want: core.PhoneAddress("5511912345678")},
		{name: "legacy phone", jid: "5511912345678@c.us", want: core.PhoneAddress("5511912345678")},
		{name: "device suffix", jid: "5511912345678:12@s.whatsapp.net", want: core.PhoneAddress("5511912345678")},
		{name: "short phone", jid: "123456@s.whatsapp.net", wantErr: true},
		{name: "long phone", jid: "1234567890123456@s.whatsapp.net", wantErr: true},
		{name: "no server", jid: "5511912345678", wantErr: true},
		{name: "non numeric", jid: "abc@lid", wantErr: true},
		{name: "unknown server", jid: "5511912345678@example.com", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJID(tc.jid)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %#v", tc.jid, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.jid, err)
			}
			if got != tc.want {
				t.Fatalf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestTimestamp_AcceptsBaileysEncodings(t *testing.T) {
	cases := map[string]int64{
		`1760000000`:                 1760000000,
		`"1760000000"`:               1760000000,
		`{"low":1760000000,"high":0}`: 1760000000,
		`null`:                       0,
	}
	for raw, want := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if int64(ts) != want {
			t.Fatalf("timestamp %s: expected %d, got %d", raw, want, ts)
		}
	}
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"soon"`), &ts); err == nil {
		t.Fatalf("expected invalid timestamp string to fail")
	}
}

func TestParseBatch_Processable(t *testing.T) {
	envelope, err := ParseBatch(upsertBody("valid_token", "notify", rawLIDMessage("msg_1", "Hello")))
	if err != nil {
		t.Fatalf("parse batch: %v", err)
	}
	if !envelope.Processable() || len(envelope.Data.Messages) != 1 {
		t.Fatalf("expected processable envelope with one message, got %#v", envelope)
	}
	if envelope.WebhookVerifyToken != "valid_token" {
		t.Fatalf("expected verify token, got %q", envelope.WebhookVerifyToken)
	}

	appended, err := ParseBatch(upsertBody("valid_token", "append", rawLIDMessage("msg_2", "Hello")))
	if err != nil {
		t.Fatalf("parse append batch: %v", err)
	}
	if appended.Processable() {
		t.Fatalf("expected append upsert to be ignored")
	}
	if _, err := ParseBatch(nil); err == nil {
		t.Fatalf("expected empty body error")
	}
	if _, err := ParseBatch([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDecodeMessage_IsolatesBadEntries(t *testing.T) {
	envelope, err := ParseBatch([]byte(`{"event":"messages.upsert","data":{"type":"notify","messages":[
		{"key":{"id":"ok","remoteJid":"12345678@lid"},"messageTimestamp":1760000000},
		{"key":{"id":"bad"},"messageTimestamp":"not-a-number"}
	]}}`))
	if err != nil {
		t.Fatalf("parse batch: %v", err)
	}
	if len(envelope.Data.Messages) != 2 {
		t.Fatalf("expected two entries, got %d", len(envelope.Data.Messages))
	}
	raw, err := DecodeMessage(envelope.Data.Messages[0])
	if err != nil || raw.Key.ID != "ok" || int64(raw.MessageTimestamp) != 1760000000 {
		t.Fatalf("unexpected first entry %#v %v", raw, err)
	}
	if _, err := DecodeMessage(envelope.Data.Messages[1]); err == nil {
		t.Fatalf("expected invalid timestamp to fail the entry")
	}
	if got := messageIDHint(envelope.Data.Messages[1]); got != "bad" {
		t.Fatalf("expected message id hint, got %q", got)
	}
}

func TestNormalize_LIDMessageWithPhoneAlternate(t *testing.T) {
	event, err := Normalize(decodeRaw(t, rawLIDMessage("msg_123", "Hello")))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.Primary != core.LIDAddress("12345678") || event.Alternate != core.PhoneAddress("5511912345678") {
		t.Fatalf("unexpected addresses: %#v %#v", event.Primary, event.Alternate)
	}
	if event.AddressingMode != core.AddressingModeLID {
		t.Fatalf("expected lid addressing mode, got %q", event.AddressingMode)
	}
	if event.Body != "Hello" || event.SenderName != "John Doe" {
		t.Fatalf("unexpected body or sender: %#v", event)
	}
	if !event.Timestamp.Equal(time.Unix(1760000000, 0)) {
		t.Fatalf("unexpected timestamp %s", event.Timestamp)
	}
}

func TestNormalize_BodySources(t *testing.T) {
	cases := []struct {
		name        string
		message     map[string]any
		body        string
		unsupported bool
	}{
		{name: "conversation", message: map[string]any{"conversation": "hi"}, body: "hi"},
		{name: "extended text", message: map[string]any{"extendedTextMessage": map[string]any{"text": "link"}}, body: "link"},
		{name: "image caption", message: map[string]any{"imageMessage": map[string]any{"caption": "look"}}, body: "look"},
		{name: "sticker", message: map[string]any{"stickerMessage": map[string]any{}}, unsupported: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := RawMessage{
				Key:              MessageKey{ID: "m-" + tc.name, RemoteJID: "5511912345678@s.whatsapp.net"},
				MessageTimestamp: 1760000000,
				Message:          tc.message,
			}
			event, err := Normalize(raw)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if event.Body != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, event.Body)
			}
			if got := event.ContentAttributes["is_unsupported"] == true; got != tc.unsupported {
				t.Fatalf("expected unsupported=%v, got attributes %#v", tc.unsupported, event.ContentAttributes)
			}
		})
	}
}

func TestNormalize_SkipsGroupsAndRejectsBadAddresses(t *testing.T) {
	for _, jid := range []string{"120363000000000000@g.us", "status@broadcast"} {
		_, err := Normalize(RawMessage{Key: MessageKey{ID: "g", RemoteJID: jid}, MessageTimestamp: 1760000000})
		if !errors.Is(err, ErrIgnoredChat) {
			t.Fatalf("expected %s to be ignored, got %v", jid, err)
		}
	}

	_, err := Normalize(RawMessage{Key: MessageKey{ID: "bad", RemoteJID: "12@s.whatsapp.net"}, MessageTimestamp: 1760000000})
	if !errors.Is(err, core.ErrMalformedEvent) {
		t.Fatalf("expected malformed event, got %v", err)
	}
	_, err = Normalize(RawMessage{Key: MessageKey{ID: "no-ts", RemoteJID: "12345678@lid"}})
	if !errors.Is(err, core.ErrMalformedEvent) {
		t.Fatalf("expected missing timestamp to be malformed, got %v", err)
	}
}

func TestNormalize_InvalidAlternateDegradesToPrimaryOnly(t *testing.T) {
	event, err := Normalize(RawMessage{
		Key:              MessageKey{ID: "m", RemoteJID: "12345678@lid", RemoteJIDAlt: "12@s.whatsapp.net"},
		MessageTimestamp: 1760000000,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !event.Alternate.IsZero() {
		t.Fatalf("expected no alternate address, got %#v", event.Alternate)
	}
}

func rawLIDMessage(id string, text string) map[string]any {
	return map[string]any{
		"key": map[string]any{
			"id":             id,
			"remoteJid":      "12345678@lid",
			"remoteJidAlt":   "5511912345678@s.whatsapp.net",
			"fromMe":         false,
			"addressingMode": "lid",
		},
		"pushName":         "John Doe",
		"messageTimestamp": 1760000000,
		"message":          map[string]any{"conversation": text},
	}
}

func upsertBody(token string, upsertType string, messages ...map[string]any) []byte {
	body, _ := json.Marshal(map[string]any{
		"webhookVerifyToken": token,
		"event":              EventMessagesUpsert,
		"data": map[string]any{
			"type":     upsertType,
			"messages": messages,
		},
	})
	return body
}

func decodeRaw(t *testing.T, raw map[string]any) RawMessage {
	t.Helper()
	encoded, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal raw message: %v", err)
	}
	var out RawMessage
	if err := json.Unmarshal(encoded, &out); err != nil {
		t.Fatalf("unmarshal raw message: %v", err)
	}
	return out
}
