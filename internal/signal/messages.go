package signal

import "encoding/json"

type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalIceCandidate SignalType = "ice-candidate"
	SignalJoin         SignalType = "join"
	SignalLeave        SignalType = "leave"
	SignalPeers        SignalType = "peers"
	SignalError        SignalType = "error"
)

// Signal is the envelope exchanged over the signaling socket. Session
// descriptions and candidates are relayed without inspection.
type Signal struct {
	Type         SignalType      `json:"type"`
	RoomCode     string          `json:"roomCode,omitempty"`
	UserId       string          `json:"userId,omitempty"`
	Username     string          `json:"username,omitempty"`
	TargetUserId string          `json:"targetUserId,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	ActiveUsers  []string        `json:"activeUsers,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (t SignalType) relayable() bool {
	switch t {
	case SignalOffer, SignalAnswer, SignalIceCandidate:
		return true
	}
	return false
}

func errorSignal(msg string) *Signal {
	return &Signal{Type: SignalError, Error: msg}
}
