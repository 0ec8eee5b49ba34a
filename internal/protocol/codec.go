package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is wrapped by DecodeError when the "type" tag is not part
	// of the vocabulary.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMalformed is wrapped by DecodeError when the payload is not a valid
	// tagged object or a required field is missing.
	ErrMalformed = errors.New("malformed message")
)

// DecodeError describes a message that could not be decoded. Decoding never
// closes the connection; callers decide whether to ignore or terminate.
type DecodeError struct {
	Tag string // value of the "type" field, if one was found
	Err error
}

func (e *DecodeError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("decode %q: %v", e.Tag, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(tag, format string, args ...any) *DecodeError {
	return &DecodeError{Tag: tag, Err: fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)}
}

// readTag extracts the discriminator from a tagged object.
func readTag(data []byte) (string, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", malformed("", "%v", err)
	}
	if envelope.Type == nil {
		return "", malformed("", "missing type field")
	}
	return *envelope.Type, nil
}

// DecodeClientMessage decodes one inbound text or binary payload.
// Errors are always *DecodeError.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	tag, err := readTag(data)
	if err != nil {
		return nil, err
	}

	switch tag {
	case TypeJoin:
		var w struct {
			Nickname *string `json:"nickname"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(tag, "%v", err)
		}
		return Join{Nickname: w.Nickname}, nil

	case TypeMove:
		var w struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(tag, "%v", err)
		}
		if w.X == nil {
			return nil, malformed(tag, "missing field x")
		}
		if w.Y == nil {
			return nil, malformed(tag, "missing field y")
		}
		return Move{X: *w.X, Y: *w.Y}, nil

	case TypeChat:
		var w struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(tag, "%v", err)
		}
		if w.Message == nil {
			return nil, malformed(tag, "missing field message")
		}
		return Chat{Message: *w.Message}, nil

	case TypeChangeNick:
		var w struct {
			Nickname *string `json:"nickname"`
		}
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(tag, "%v", err)
		}
		if w.Nickname == nil {
			return nil, malformed(tag, "missing field nickname")
		}
		return ChangeNick{Nickname: *w.Nickname}, nil
	}

	return nil, &DecodeError{Tag: tag, Err: ErrUnknownType}
}

// DecodeServerMessage decodes one outbound payload. It is used by clients and
// tests; the server itself only encodes server messages.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	tag, err := readTag(data)
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	switch tag {
	case TypeWelcome:
		var m Welcome
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerJoined:
		var m PlayerJoined
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerLeft:
		var m PlayerLeft
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePlayerMoved:
		var m PlayerMoved
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeError:
		var m ErrorMessage
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, &DecodeError{Tag: tag, Err: ErrUnknownType}
	}
	if err != nil {
		return nil, malformed(tag, "%v", err)
	}
	return msg, nil
}

// EncodeServerMessage encodes msg as {"type": <tag>, ...fields}.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	if w, ok := msg.(Welcome); ok && w.Players == nil {
		// Renderers iterate the list; never send null.
		w.Players = []Player{}
		msg = w
	}
	return encodeTagged(msg.Type(), msg)
}

// EncodeClientMessage encodes msg as {"type": <tag>, ...fields}.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	return encodeTagged(msg.Type(), msg)
}

// encodeTagged marshals v and prepends the type discriminator so that it is
// always the first field.
func encodeTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", tag)
	}

	quoted, err := json.Marshal(tag)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}

	out := make([]byte, 0, len(body)+len(quoted)+10)
	out = append(out, `{"type":`...)
	out = append(out, quoted...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
