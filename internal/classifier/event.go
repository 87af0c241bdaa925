// Package classifier normalizes provider webhook payloads and decides what kind of
// event each one carries.
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPayload = errors.New("invalid webhook payload")

// Event is the normalized form of one provider webhook delivery.
type Event struct {
	EventType    string
	InstanceName string
	Owner        string

	ProviderMessageID string
	ChatID            string
	Phone             string
	SenderName        string
	ChatName          string
	AvatarURL         string
	FromSelf          bool
	IsGroup           bool

	MessageType string
	RawType     string
	MediaType   string

	Text     string
	Caption  string
	MimeType string
	FileName string
	PTT      bool

	QuotedID       string
	ReactionTarget string

	Timestamp time.Time

	UpdateType       string
	UpdateMessageIDs []string
}

// Body returns the caption when present, else the text.
func (e *Event) Body() string {
	if e.Caption != "" {
		return e.Caption
	}
	return e.Text
}

type rawEvent struct {
	EventType    string       `json:"EventType"`
	Type         string       `json:"type"`
	InstanceName string       `json:"instanceName"`
	Instance     string       `json:"instance"`
	Owner        string       `json:"owner"`
	Message      *rawMessage  `json:"message"`
	Chat         *rawChat     `json:"chat"`
	Event        *rawUpdate   `json:"event"`
	Data         *rawEnvelope `json:"data"`
}

// rawEnvelope covers dialects that nest the message under "data".
type rawEnvelope struct {
	Message *rawMessage `json:"message"`
	Chat    *rawChat    `json:"chat"`
}

type rawMessage struct {
	ID          string     `json:"id"`
	MessageID   string     `json:"messageid"`
	ChatID      string     `json:"chatid"`
	Sender      string     `json:"sender"`
	SenderName  string     `json:"senderName"`
	FromMe      bool       `json:"fromMe"`
	IsGroup     bool       `json:"isGroup"`
	MessageType string     `json:"messageType"`
	Type        string     `json:"type"`
	MediaType   string     `json:"mediaType"`
	Text        string     `json:"text"`
	Content     rawContent `json:"content"`
	Quoted      string     `json:"quoted"`
	Reaction    string     `json:"reaction"`
	Timestamp   flexInt64  `json:"messageTimestamp"`
	MimeType    string     `json:"mimetype"`
	FileName    string     `json:"fileName"`
}

type rawChat struct {
	WaChatID     string `json:"wa_chatid"`
	WaName       string `json:"wa_name"`
	Name         string `json:"name"`
	ImagePreview string `json:"imagePreview"`
	Image        string `json:"image"`
}

type rawUpdate struct {
	Type       string   `json:"Type"`
	MessageIDs []string `json:"MessageIDs"`
	IsFromMe   bool     `json:"IsFromMe"`
	Chat       string   `json:"Chat"`
}

// UnmarshalJSON tolerates dialects where "event" is a plain string.
func (u *rawUpdate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	type plain rawUpdate
	return json.Unmarshal(data, (*plain)(u))
}

// rawContent accepts either a bare string or an object with media details.
type rawContent struct {
	Text     string
	Caption  string
	MimeType string
	FileName string
	PTT      bool
}

func (c *rawContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	if data[0] != '{' {
		// Numbers and arrays carry nothing we use.
		return nil
	}
	var obj struct {
		Text     string `json:"text"`
		Caption  string `json:"caption"`
		MimeType string `json:"mimetype"`
		FileName string `json:"fileName"`
		PTT      bool   `json:"PTT"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.Text = obj.Text
	c.Caption = obj.Caption
	c.MimeType = obj.MimeType
	c.FileName = obj.FileName
	c.PTT = obj.PTT
	return nil
}

// flexInt64 accepts a JSON number or a numeric string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	*f = flexInt64(n)
	return nil
}

// Parse decodes a webhook body into an Event. now is used when the payload has no
// timestamp.
func Parse(body []byte, now time.Time) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ev := &Event{
		EventType:    firstNonEmpty(raw.EventType, raw.Type),
		InstanceName: firstNonEmpty(raw.InstanceName, raw.Instance),
		Owner:        raw.Owner,
		Timestamp:    now,
	}

	msg, chat := raw.Message, raw.Chat
	if msg == nil && raw.Data != nil {
		msg = raw.Data.Message
		if chat == nil {
			chat = raw.Data.Chat
		}
	}

	if raw.Event != nil {
		ev.UpdateType = raw.Event.Type
		ev.UpdateMessageIDs = raw.Event.MessageIDs
		ev.FromSelf = raw.Event.IsFromMe
		ev.ChatID = raw.Event.Chat
	}

	if msg != nil {
		applyMessage(ev, msg, chat, now)
	}

	if chat != nil {
		ev.ChatName = chat.WaName
		if ev.ChatName == "" {
			ev.ChatName = chat.Name
		}
		ev.AvatarURL = firstNonEmpty(chat.ImagePreview, chat.Image)
	}

	return ev, nil
}

func applyMessage(ev *Event, msg *rawMessage, chat *rawChat, now time.Time) {
	chatID := msg.ChatID
	if chat != nil {
		chatID = firstNonEmpty(chatID, chat.WaChatID)
	}

	ev.ProviderMessageID = firstNonEmpty(msg.MessageID, msg.ID)
	ev.ChatID = chatID
	ev.SenderName = msg.SenderName
	ev.FromSelf = msg.FromMe
	ev.IsGroup = msg.IsGroup || strings.HasSuffix(chatID, "@g.us")
	ev.MessageType = msg.MessageType
	ev.RawType = msg.Type
	ev.MediaType = msg.MediaType
	ev.QuotedID = msg.Quoted
	ev.ReactionTarget = msg.Reaction

	ev.Text = firstNonEmpty(msg.Text, msg.Content.Text)
	ev.Caption = msg.Content.Caption
	ev.MimeType = firstNonEmpty(msg.Content.MimeType, msg.MimeType)
	ev.FileName = firstNonEmpty(msg.Content.FileName, msg.FileName)
	ev.PTT = msg.Content.PTT || strings.EqualFold(msg.MediaType, "ptt")

	// For direct chats the chat id is the counterpart; sender is us when fromMe.
	source := chatID
	if source == "" || ev.IsGroup {
		source = msg.Sender
	}
	ev.Phone = NormalizePhone(source)

	ev.Timestamp = normalizeTimestamp(int64(msg.Timestamp), now)
}

// NormalizePhone strips the JID suffix and any non-digit characters.
func NormalizePhone(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	var b strings.Builder
	b.Grow(len(jid))
	for _, r := range jid {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeTimestamp treats values below 1e12 as seconds, others as milliseconds.
func normalizeTimestamp(ts int64, now time.Time) time.Time {
	switch {
	case ts <= 0:
		return now
	case ts < 1e12:
		return time.Unix(ts, 0).UTC()
	default:
		return time.UnixMilli(ts).UTC()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
