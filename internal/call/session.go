package call

import (
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"svyaz/internal/models"
)

// session is one pending or active call. All fields are guarded by the
// manager's mutex.
type session struct {
	id       string
	peer     models.Profile
	incoming bool
	state    State

	accepting bool

	pc     PeerConnection
	stream LocalStream
	remote []RemoteTrack

	offer     *webrtc.SessionDescription
	remoteSet bool
	pending   []webrtc.ICECandidateInit // remote candidates waiting for the remote description

	signaled bool
	outbox   []webrtc.ICECandidateInit // local candidates waiting for our offer or answer

	timer *time.Timer
}

func newSession(id string, peer models.Profile, incoming bool) *session {
	return &session{
		id:       id,
		peer:     peer,
		incoming: incoming,
		state:    StateIdle,
	}
}

// applyRemote sets the remote description and then replays buffered
// candidates in arrival order.
func (s *session) applyRemote(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.remoteSet = true

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			slog.Warn("buffered ice candidate rejected", "call_id", s.id, "error", err)
		}
	}
	return nil
}

func (s *session) addRemoteCandidate(c webrtc.ICECandidateInit) {
	if s.pc == nil || !s.remoteSet {
		s.pending = append(s.pending, c)
		return
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		slog.Warn("ice candidate rejected", "call_id", s.id, "error", err)
	}
}

// release stops local media and closes the peer connection.
func (s *session) release() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			slog.Warn("closing peer connection", "call_id", s.id, "error", err)
		}
		s.pc = nil
	}
	s.pending = nil
	s.outbox = nil
}

func (s *session) update(reason string) Update {
	return Update{
		CallID:   s.id,
		PeerID:   s.peer.ID,
		Incoming: s.incoming,
		State:    s.state,
		Reason:   reason,
	}
}
