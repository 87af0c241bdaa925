package classifier

import (
	"strings"

	"github.com/ppopeskul/wa-ingest/internal/models"
)

type Kind string

const (
	KindText     Kind = "text"
	KindReaction Kind = "reaction"
	KindDeletion Kind = "deletion"
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
	KindIgnored  Kind = "ignored"
)

const (
	EventTypeMessages       = "messages"
	EventTypeMessagesUpdate = "messages_update"
)

// IsMedia reports whether the kind carries a binary attachment.
func (k Kind) IsMedia() bool {
	return k.MessageType().IsMedia()
}

// MessageType maps a message-bearing kind to its stored type. Other kinds map to "".
func (k Kind) MessageType() models.MessageType {
	switch k {
	case KindText:
		return models.MessageTypeText
	case KindAudio:
		return models.MessageTypeAudio
	case KindImage:
		return models.MessageTypeImage
	case KindVideo:
		return models.MessageTypeVideo
	case KindDocument:
		return models.MessageTypeDocument
	case KindSticker:
		return models.MessageTypeSticker
	default:
		return ""
	}
}

type mediaRule struct {
	kind         Kind
	messageTypes []string
	mediaTypes   []string
	mimePrefixes []string
	extensions   []string
}

// mediaRules are evaluated in order and the first match wins.
var mediaRules = []mediaRule{
	{
		kind:         KindAudio,
		messageTypes: []string{"audiomessage", "pttmessage"},
		mediaTypes:   []string{"audio", "ptt", "myaudio"},
		mimePrefixes: []string{"audio/"},
	},
	{
		kind:         KindImage,
		messageTypes: []string{"imagemessage"},
		mediaTypes:   []string{"image"},
		mimePrefixes: []string{"image/"},
	},
	{
		kind:         KindVideo,
		messageTypes: []string{"videomessage", "ptvmessage"},
		mediaTypes:   []string{"video", "ptv"},
		mimePrefixes: []string{"video/"},
	},
	{
		kind:         KindDocument,
		messageTypes: []string{"documentmessage", "documentwithcaptionmessage"},
		mediaTypes:   []string{"document"},
		mimePrefixes: []string{"application/", "text/"},
		extensions:   []string{".md", ".markdown"},
	},
	{
		kind:         KindSticker,
		messageTypes: []string{"stickermessage"},
		mediaTypes:   []string{"sticker"},
	},
}

var deletionUpdateTypes = map[string]struct{}{
	"deleted":        {},
	"revoked":        {},
	"delete":         {},
	"deletedmessage": {},
}

// Classify decides the kind of a normalized event. It never fails; anything it
// does not recognize is KindIgnored.
func Classify(ev *Event) Kind {
	if ev == nil {
		return KindIgnored
	}

	eventType := strings.ToLower(ev.EventType)

	if eventType == EventTypeMessagesUpdate {
		if _, ok := deletionUpdateTypes[strings.ToLower(ev.UpdateType)]; ok {
			return KindDeletion
		}
	}

	if eventType != EventTypeMessages {
		return KindIgnored
	}

	if ev.IsGroup {
		return KindIgnored
	}

	messageType := strings.ToLower(ev.MessageType)
	mediaType := strings.ToLower(ev.MediaType)
	mime := strings.ToLower(ev.MimeType)
	fileName := strings.ToLower(ev.FileName)

	for _, rule := range mediaRules {
		if rule.matches(messageType, mediaType, mime, fileName) {
			return rule.kind
		}
	}

	rawType := strings.ToLower(ev.RawType)

	if messageType == "reactionmessage" || rawType == "reaction" {
		return KindReaction
	}

	if rawType == "text" || rawType == "chat" ||
		messageType == "conversation" || messageType == "extendedtextmessage" {
		return KindText
	}

	return KindIgnored
}

func (r mediaRule) matches(messageType, mediaType, mime, fileName string) bool {
	if messageType != "" && contains(r.messageTypes, messageType) {
		return true
	}
	if mediaType != "" && contains(r.mediaTypes, mediaType) {
		return true
	}
	if mime != "" {
		for _, prefix := range r.mimePrefixes {
			if strings.HasPrefix(mime, prefix) {
				return true
			}
		}
	}
	if fileName != "" {
		for _, ext := range r.extensions {
			if strings.HasSuffix(fileName, ext) {
				return true
			}
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
