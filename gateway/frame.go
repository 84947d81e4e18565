package gateway

import (
	"encoding/json"
	stderrors "errors"

	"market-chat/domain"
	"market-chat/errors"
)

type FrameType string

const (
	FrameJoin    FrameType = "join"
	FrameSend    FrameType = "send"
	FrameJoined  FrameType = "joined"
	FrameSent    FrameType = "sent"
	FrameReceive FrameType = "receive"
	FrameError   FrameType = "error"
)

// Inbound is a command written by the client.
type Inbound struct {
	Type      FrameType     `json:"type"`
	UserID    domain.UserID `json:"userId,omitempty"`
	Receiver  domain.UserID `json:"receiver,omitempty"`
	Content   string        `json:"content,omitempty"`
	ClientRef string        `json:"clientRef,omitempty"`
}

// Outbound is everything the server writes to a client.
type Outbound struct {
	Type      FrameType       `json:"type"`
	UserID    domain.UserID   `json:"userId,omitempty"`
	ClientRef string          `json:"clientRef,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
	Code      errors.Code     `json:"code,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, errors.Validation("malformed frame: %v", err)
	}
	return in, nil
}

func JoinedFrame(userID domain.UserID) Outbound {
	return Outbound{Type: FrameJoined, UserID: userID}
}

func SentFrame(message domain.Message, clientRef string) Outbound {
	return Outbound{Type: FrameSent, ClientRef: clientRef, Message: &message}
}

func ReceiveFrame(message domain.Message) Outbound {
	return Outbound{Type: FrameReceive, Message: &message}
}

// ErrorFrame hides internal and storage details from the client.
func ErrorFrame(err error, clientRef string) Outbound {
	code := errors.ToCode(err)
	reason := err.Error()
	switch code {
	case errors.CodeStoreUnavailable:
		reason = errors.ErrStoreUnavailable.Error()
	case errors.CodeInternal:
		reason = "internal error"
		if stderrors.Is(err, errors.ErrConnectionClosed) {
			reason = errors.ErrConnectionClosed.Error()
		}
	}
	return Outbound{Type: FrameError, Code: code, Reason: reason, ClientRef: clientRef}
}
