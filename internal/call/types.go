package call

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"

	"svyaz/internal/models"
)

var (
	ErrBusy           = errors.New("call already in progress")
	ErrNoIncomingCall = errors.New("no incoming call")
	ErrCallEnded      = errors.New("call ended")
)

type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StateRinging    State = "ringing"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnded      State = "ended"
)

// Reasons carried by call-end.
const (
	ReasonHangup   = "hangup"
	ReasonRejected = "rejected"
	ReasonBusy     = "busy"
	ReasonTimeout  = "timeout"
	ReasonFailed   = "failed"
	ReasonMedia    = "media unavailable"
)

// Signaler is the part of the realtime transport calls are negotiated over.
type Signaler interface {
	Emit(ctx context.Context, name string, data any) error
	Post(name string, data any) error
	On(name string, fn func(json.RawMessage)) func()
}

// PeerConnection is the WebRTC surface a call needs. CreateOffer and
// CreateAnswer also apply the result as the local description. Callbacks
// must not be invoked synchronously from within the methods.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(RemoteTrack))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	Close() error
}

type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

type Constraints struct {
	Audio bool
	Video bool
}

type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints Constraints) (LocalStream, error)
}

// LocalStream is captured local media. Stop releases it and may be called
// more than once.
type LocalStream interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

type RemoteTrack struct {
	CallID   string `json:"callId"`
	ID       string `json:"id"`
	StreamID string `json:"streamId"`
	Kind     string `json:"kind"`
}

// Incoming describes a ringing call.
type Incoming struct {
	CallID string
	Caller models.Profile
}

// Update is published on every state change of the current call.
type Update struct {
	CallID   string
	PeerID   string
	Incoming bool
	State    State
	Reason   string
}
