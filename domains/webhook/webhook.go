// Package webhook models the raw provider event envelope and the typed
// events it normalizes into. Parsing is kept pure so the tolerance logic
// for the provider's loosely shaped payloads lives in one place.
package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// IUsecase processes a raw inbound envelope end to end. Implementations
// must always be safe to call again with the same envelope.
type IUsecase interface {
	Process(ctx context.Context, env Envelope) error
}

// EventKind is the canonical classification of an inbound provider event.
type EventKind string

const (
	KindMessageReceived EventKind = "message_received"
	KindStatusUpdate    EventKind = "status_update"
	KindConnectionState EventKind = "connection_state"
	KindMessageEdited   EventKind = "message_edited"
	KindReaction        EventKind = "reaction"
	KindUnknown         EventKind = "unknown"
)

// Envelope is the raw inbound webhook body.
type Envelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// MessageEvent is a normalized inbound or outbound message.
type MessageEvent struct {
	ProviderID  string
	RemoteJID   string
	SenderJID   string
	DisplayName string
	FromMe      bool
	Content     string
	Kind        string
	MediaKey    string
	MediaURL    string
	MimeType    string
	QuotedID    string
	Timestamp   time.Time
}

// StatusEvent is a delivery status change for one provider message id.
type StatusEvent struct {
	ProviderID string
	Status     string
}

// ConnectionEvent is a channel session state change.
type ConnectionEvent struct {
	State string
}

// ReactionEvent is a reaction applied or removed on a target message.
// An empty Emoji means removal.
type ReactionEvent struct {
	TargetProviderID string
	Reactor          string
	Emoji            string
	Timestamp        time.Time
}

// EditEvent carries the replacement content for an earlier message.
type EditEvent struct {
	TargetProviderID string
	NewContent       string
	EditedAt         time.Time
}

// Event is the tagged result of parsing an envelope. Exactly one payload
// field matching Kind is non-nil.
type Event struct {
	Kind       EventKind
	Message    *MessageEvent
	Status     *StatusEvent
	Connection *ConnectionEvent
	Reaction   *ReactionEvent
	Edit       *EditEvent
}

var statusTokens = map[string]bool{
	"messagesupdate": true,
	"messageupdate":  true,
	"messagesack":    true,
	"messageack":     true,
	"ack":            true,
	"messagestatus":  true,
	"statusupdate":   true,
}

// ClassifyEventKind maps the provider's event name to a canonical kind.
// Status-update events arrive under several spellings and casings, so the
// name is case-folded and stripped of separators before matching, with a
// substring fallback for anything carrying ack/delivery/status.
func ClassifyEventKind(event string) EventKind {
	folded := strings.ToLower(event)
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '_', ' ':
			return -1
		}
		return r
	}, folded)

	switch stripped {
	case "messagesupsert", "messageupsert":
		return KindMessageReceived
	case "messagesedited", "messageedited", "messageseditedupdate":
		return KindMessageEdited
	case "messagesreaction", "messagereaction":
		return KindReaction
	case "connectionupdate", "connectionstatechange", "connectionstate":
		return KindConnectionState
	}
	if statusTokens[stripped] {
		return KindStatusUpdate
	}
	if strings.Contains(stripped, "ack") ||
		strings.Contains(stripped, "delivery") ||
		strings.Contains(stripped, "status") {
		return KindStatusUpdate
	}
	return KindUnknown
}

// rawMessage mirrors the provider's message-upsert payload shape. Fields
// the provider sometimes nests or renames are collected here and folded
// down in ParseEvent.
type rawMessage struct {
	Key struct {
		ID          string `json:"id"`
		RemoteJID   string `json:"remoteJid"`
		FromMe      bool   `json:"fromMe"`
		Participant string `json:"participant"`
	} `json:"key"`
	PushName         string          `json:"pushName"`
	MessageTimestamp int64           `json:"messageTimestamp"`
	Message          json.RawMessage `json:"message"`
}

type rawMessageBody struct {
	Conversation    string `json:"conversation"`
	ExtendedText    *struct {
		Text        string `json:"text"`
		ContextInfo *struct {
			StanzaID string `json:"stanzaId"`
		} `json:"contextInfo"`
	} `json:"extendedTextMessage"`
	Image    *rawMedia `json:"imageMessage"`
	Audio    *rawMedia `json:"audioMessage"`
	Video    *rawMedia `json:"videoMessage"`
	Document *rawMedia `json:"documentMessage"`
	Sticker  *rawMedia `json:"stickerMessage"`
	Contact  *struct {
		DisplayName string `json:"displayName"`
	} `json:"contactMessage"`
	Reaction *struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		Text              string `json:"text"`
		SenderTimestampMS int64  `json:"senderTimestampMs"`
	} `json:"reactionMessage"`
	Edited *struct {
		Message struct {
			ProtocolMessage *struct {
				Key struct {
					ID string `json:"id"`
				} `json:"key"`
				EditedMessage json.RawMessage `json:"editedMessage"`
			} `json:"protocolMessage"`
		} `json:"message"`
	} `json:"editedMessage"`
	ProtocolMessage *struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		EditedMessage json.RawMessage `json:"editedMessage"`
	} `json:"protocolMessage"`
}

type rawMedia struct {
	URL       string `json:"url"`
	MimeType  string `json:"mimetype"`
	Caption   string `json:"caption"`
	MediaKey  string `json:"mediaKey"`
	DirectPth string `json:"directPath"`
}

type rawStatus struct {
	KeyID  string `json:"keyId"`
	Key    *struct {
		ID string `json:"id"`
	} `json:"key"`
	MessageID string          `json:"messageId"`
	Ack       *int            `json:"ack"`
	Status    json.RawMessage `json:"status"`
	State     string          `json:"state"`
	Update    *struct {
		Status json.RawMessage `json:"status"`
	} `json:"update"`
}

type rawConnection struct {
	State      string `json:"state"`
	Connection string `json:"connection"`
	StatusCode int    `json:"statusCode"`
}

// ParseEvent turns a raw envelope into a typed event. A message-upsert
// whose body is an edit wrapper or a reaction is redirected to the edit
// or reaction kind here, before any handler sees it.
func ParseEvent(env Envelope) (Event, error) {
	kind := ClassifyEventKind(env.Event)

	switch kind {
	case KindMessageReceived:
		return parseMessageUpsert(env.Data)
	case KindMessageEdited:
		return parseEdit(env.Data)
	case KindReaction:
		return parseReaction(env.Data)
	case KindStatusUpdate:
		return parseStatus(env.Data)
	case KindConnectionState:
		var raw rawConnection
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return Event{}, err
		}
		state := raw.State
		if state == "" {
			state = raw.Connection
		}
		return Event{Kind: KindConnectionState, Connection: &ConnectionEvent{State: state}}, nil
	default:
		return Event{Kind: KindUnknown}, nil
	}
}

func parseMessageUpsert(data json.RawMessage) (Event, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, err
	}

	ts := time.Unix(raw.MessageTimestamp, 0)
	if raw.MessageTimestamp == 0 {
		ts = time.Now()
	}

	var body rawMessageBody
	if len(raw.Message) > 0 {
		if err := json.Unmarshal(raw.Message, &body); err != nil {
			return Event{}, err
		}
	}

	// Edit-in-disguise: the provider wraps edits in a normal upsert.
	if proto := editProtocol(&body); proto != nil {
		content := extractEditedContent(proto.EditedMessage)
		return Event{Kind: KindMessageEdited, Edit: &EditEvent{
			TargetProviderID: proto.Key.ID,
			NewContent:       content,
			EditedAt:         ts,
		}}, nil
	}

	if body.Reaction != nil {
		reactor := raw.Key.Participant
		if reactor == "" {
			reactor = raw.Key.RemoteJID
		}
		rts := ts
		if body.Reaction.SenderTimestampMS > 0 {
			rts = time.UnixMilli(body.Reaction.SenderTimestampMS)
		}
		return Event{Kind: KindReaction, Reaction: &ReactionEvent{
			TargetProviderID: body.Reaction.Key.ID,
			Reactor:          reactor,
			Emoji:            body.Reaction.Text,
			Timestamp:        rts,
		}}, nil
	}

	msg := MessageEvent{
		ProviderID:  raw.Key.ID,
		RemoteJID:   raw.Key.RemoteJID,
		SenderJID:   raw.Key.Participant,
		DisplayName: raw.PushName,
		FromMe:      raw.Key.FromMe,
		Kind:        "text",
		Timestamp:   ts,
	}
	if msg.SenderJID == "" {
		msg.SenderJID = raw.Key.RemoteJID
	}

	switch {
	case body.Conversation != "":
		msg.Content = body.Conversation
	case body.ExtendedText != nil:
		msg.Content = body.ExtendedText.Text
		if body.ExtendedText.ContextInfo != nil {
			msg.QuotedID = body.ExtendedText.ContextInfo.StanzaID
		}
	case body.Image != nil:
		fillMedia(&msg, "image", body.Image)
	case body.Audio != nil:
		fillMedia(&msg, "audio", body.Audio)
	case body.Video != nil:
		fillMedia(&msg, "video", body.Video)
	case body.Document != nil:
		fillMedia(&msg, "document", body.Document)
	case body.Sticker != nil:
		fillMedia(&msg, "sticker", body.Sticker)
	case body.Contact != nil:
		msg.Kind = "contact"
		msg.Content = body.Contact.DisplayName
	}

	return Event{Kind: KindMessageReceived, Message: &msg}, nil
}

func fillMedia(msg *MessageEvent, kind string, m *rawMedia) {
	msg.Kind = kind
	msg.Content = m.Caption
	msg.MimeType = m.MimeType
	msg.MediaURL = m.URL
	msg.MediaKey = m.MediaKey
	if msg.MediaKey == "" {
		msg.MediaKey = m.DirectPth
	}
}

type editedProtocol struct {
	Key struct {
		ID string `json:"id"`
	}
	EditedMessage json.RawMessage
}

func editProtocol(body *rawMessageBody) *editedProtocol {
	if body.Edited != nil && body.Edited.Message.ProtocolMessage != nil {
		p := body.Edited.Message.ProtocolMessage
		out := &editedProtocol{EditedMessage: p.EditedMessage}
		out.Key.ID = p.Key.ID
		return out
	}
	if body.ProtocolMessage != nil {
		out := &editedProtocol{EditedMessage: body.ProtocolMessage.EditedMessage}
		out.Key.ID = body.ProtocolMessage.Key.ID
		return out
	}
	return nil
}

func extractEditedContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var body struct {
		Conversation string `json:"conversation"`
		ExtendedText *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Conversation != "" {
		return body.Conversation
	}
	if body.ExtendedText != nil {
		return body.ExtendedText.Text
	}
	return ""
}

func parseEdit(data json.RawMessage) (Event, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, err
	}
	var body rawMessageBody
	if len(raw.Message) > 0 {
		if err := json.Unmarshal(raw.Message, &body); err != nil {
			return Event{}, err
		}
	}
	ts := time.Unix(raw.MessageTimestamp, 0)
	if raw.MessageTimestamp == 0 {
		ts = time.Now()
	}
	if proto := editProtocol(&body); proto != nil {
		return Event{Kind: KindMessageEdited, Edit: &EditEvent{
			TargetProviderID: proto.Key.ID,
			NewContent:       extractEditedContent(proto.EditedMessage),
			EditedAt:         ts,
		}}, nil
	}
	// Some providers flatten the edit onto the envelope directly.
	var flat struct {
		KeyID      string `json:"keyId"`
		NewContent string `json:"text"`
	}
	if err := json.Unmarshal(data, &flat); err == nil && flat.KeyID != "" {
		return Event{Kind: KindMessageEdited, Edit: &EditEvent{
			TargetProviderID: flat.KeyID,
			NewContent:       flat.NewContent,
			EditedAt:         ts,
		}}, nil
	}
	return Event{Kind: KindUnknown}, nil
}

func parseReaction(data json.RawMessage) (Event, error) {
	return parseMessageUpsert(data)
}

// Provider ack codes.
const (
	ackSent      = 1
	ackDelivered = 2
	ackRead      = 3
)

// parseStatus normalizes the many shapes a status update arrives in. The
// status value may live under ack (numeric), status (numeric or string),
// state, or nested update.status. Fallthrough order is fixed so the same
// payload always resolves the same way.
func parseStatus(data json.RawMessage) (Event, error) {
	var raw rawStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, err
	}

	id := raw.KeyID
	if id == "" && raw.Key != nil {
		id = raw.Key.ID
	}
	if id == "" {
		id = raw.MessageID
	}
	if id == "" {
		return Event{Kind: KindUnknown}, nil
	}

	status := ""
	switch {
	case raw.Ack != nil:
		status = ackToStatus(*raw.Ack)
	case len(raw.Status) > 0:
		status = decodeStatusValue(raw.Status)
	case raw.Update != nil && len(raw.Update.Status) > 0:
		status = decodeStatusValue(raw.Update.Status)
	case raw.State != "":
		status = normalizeStatusName(raw.State)
	}
	if status == "" {
		return Event{Kind: KindUnknown}, nil
	}

	return Event{Kind: KindStatusUpdate, Status: &StatusEvent{ProviderID: id, Status: status}}, nil
}

func decodeStatusValue(raw json.RawMessage) string {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return ackToStatus(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalizeStatusName(s)
	}
	return ""
}

func ackToStatus(ack int) string {
	switch ack {
	case ackSent:
		return "sent"
	case ackDelivered:
		return "delivered"
	case ackRead:
		return "read"
	}
	return ""
}

func normalizeStatusName(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SERVER_ACK", "SENT", "PENDING":
		return "sent"
	case "DELIVERY_ACK", "DELIVERED", "DEVICE":
		return "delivered"
	case "READ", "READ_ACK", "PLAYED":
		return "read"
	case "ERROR", "FAILED":
		return "failed"
	}
	return ""
}
