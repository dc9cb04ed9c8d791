// Package call negotiates one-to-one WebRTC calls over the realtime
// transport and tracks the state of the current call.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

const defaultSignalTimeout = 10 * time.Second

type Options struct {
	// Timeout ends calls that are not active after this long. Zero disables it.
	Timeout       time.Duration
	SignalTimeout time.Duration
}

// Manager owns at most one call at a time. Signals arrive on the transport
// reader goroutine and peer connection callbacks on their own goroutines;
// both are serialized by mu. Observers are notified after mu is released so
// they may call back into the manager.
type Manager struct {
	self  models.Profile
	sig   Signaler
	peers PeerFactory
	media MediaDevices
	opts  Options

	mu      sync.Mutex
	current *session
	state   State
	notes   []func()

	updates  event.Feed[Update]
	incoming event.Feed[Incoming]
	tracks   event.Feed[RemoteTrack]
	errs     event.Feed[error]

	unsubs []func()
}

func NewManager(self models.Profile, sig Signaler, peers PeerFactory, media MediaDevices, opts Options) *Manager {
	if opts.SignalTimeout <= 0 {
		opts.SignalTimeout = defaultSignalTimeout
	}
	m := &Manager{
		self:  self,
		sig:   sig,
		peers: peers,
		media: media,
		opts:  opts,
		state: StateIdle,
	}
	m.unsubs = []func(){
		sig.On(models.EventCallOffer, m.handleOffer),
		sig.On(models.EventCallAnswer, m.handleAnswer),
		sig.On(models.EventCallICECandidate, m.handleCandidate),
		sig.On(models.EventCallEnd, m.handleEnd),
		sig.On(models.EventDisconnect, m.handleDisconnect),
	}
	return m
}

// StartCall calls peerID and returns the new call id once the offer is sent.
func (m *Manager) StartCall(ctx context.Context, peerID string) (string, error) {
	if peerID == "" || peerID == m.self.ID {
		return "", fmt.Errorf("invalid peer %q", peerID)
	}

	m.lock()
	if m.current != nil {
		m.unlock()
		return "", ErrBusy
	}
	s := newSession(uuid.NewString(), models.Profile{ID: peerID}, false)
	m.current = s
	m.setState(s, StateInitiating, "")
	m.startTimer(s)
	m.unlock()

	slog.Info("starting call", "call_id", s.id, "peer_id", peerID)

	stream, pc, err := m.prepare(ctx)

	m.lock()
	defer m.unlock()

	if err != nil {
		if m.current == s {
			m.end(s, ReasonMedia)
			m.notifyError(err)
		}
		return "", err
	}
	if m.current != s {
		stream.Stop()
		pc.Close()
		return "", ErrCallEnded
	}
	m.attach(s, stream, pc)

	offer, err := s.pc.CreateOffer()
	if err != nil {
		m.end(s, ReasonFailed)
		m.notifyError(err)
		return "", fmt.Errorf("create offer: %w", err)
	}

	err = m.signal(models.EventCallOffer, models.CallOffer{
		CallID: s.id,
		To:     peerID,
		From:   m.self,
		Offer:  offer,
	})
	if err != nil {
		m.end(s, ReasonFailed)
		m.notifyError(err)
		return "", fmt.Errorf("send offer: %w", err)
	}
	m.flushOutbox(s)

	return s.id, nil
}

// AcceptCall answers the ringing call.
func (m *Manager) AcceptCall(ctx context.Context) error {
	m.lock()
	s := m.current
	if s == nil || !s.incoming || s.state != StateRinging || s.accepting {
		m.unlock()
		return ErrNoIncomingCall
	}
	s.accepting = true
	m.unlock()

	stream, pc, err := m.prepare(ctx)

	m.lock()
	defer m.unlock()

	if err != nil {
		if m.current == s {
			m.signalEnd(s, ReasonMedia)
			m.end(s, ReasonMedia)
			m.notifyError(err)
		}
		return err
	}
	if m.current != s {
		stream.Stop()
		pc.Close()
		return ErrCallEnded
	}
	m.attach(s, stream, pc)

	if err := s.applyRemote(*s.offer); err != nil {
		m.signalEnd(s, ReasonFailed)
		m.end(s, ReasonFailed)
		m.notifyError(err)
		return fmt.Errorf("apply offer: %w", err)
	}

	answer, err := s.pc.CreateAnswer()
	if err != nil {
		m.signalEnd(s, ReasonFailed)
		m.end(s, ReasonFailed)
		m.notifyError(err)
		return fmt.Errorf("create answer: %w", err)
	}

	m.setState(s, StateConnecting, "")

	err = m.signal(models.EventCallAnswer, models.CallAnswer{
		CallID: s.id,
		To:     s.peer.ID,
		From:   m.self.ID,
		Answer: answer,
	})
	if err != nil {
		m.end(s, ReasonFailed)
		m.notifyError(err)
		return fmt.Errorf("send answer: %w", err)
	}
	m.flushOutbox(s)

	return nil
}

// RejectCall declines the ringing call without touching local media.
func (m *Manager) RejectCall() error {
	m.lock()
	defer m.unlock()

	s := m.current
	if s == nil || !s.incoming || s.state != StateRinging {
		return ErrNoIncomingCall
	}
	m.signalEnd(s, ReasonRejected)
	m.end(s, ReasonRejected)
	return nil
}

// EndCall hangs up the current call. It does nothing when there is none.
func (m *Manager) EndCall() {
	m.lock()
	defer m.unlock()

	s := m.current
	if s == nil {
		return
	}
	m.signalEnd(s, ReasonHangup)
	m.end(s, ReasonHangup)
}

// State returns the state of the current call, or of the last one when
// nothing is in progress.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current describes the call in progress.
func (m *Manager) Current() (Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Update{}, false
	}
	return m.current.update(""), true
}

func (m *Manager) OnState(fn func(Update)) func() {
	return m.updates.Subscribe(fn)
}

func (m *Manager) OnIncoming(fn func(Incoming)) func() {
	return m.incoming.Subscribe(fn)
}

func (m *Manager) OnRemoteTrack(fn func(RemoteTrack)) func() {
	return m.tracks.Subscribe(fn)
}

func (m *Manager) OnError(fn func(error)) func() {
	return m.errs.Subscribe(fn)
}

// Close hangs up and stops listening for signals.
func (m *Manager) Close() {
	m.EndCall()
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

func (m *Manager) handleOffer(data json.RawMessage) {
	var p models.CallOffer
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("malformed call-offer", "error", err)
		return
	}
	if p.CallID == "" || p.From.ID == "" {
		slog.Warn("call-offer without call id or caller")
		return
	}

	m.lock()
	defer m.unlock()

	if m.current != nil {
		if m.current.id == p.CallID {
			return
		}
		slog.Info("declining call while busy", "call_id", p.CallID, "peer_id", p.From.ID)
		err := m.sig.Post(models.EventCallEnd, models.CallEnd{
			CallID: p.CallID,
			To:     p.From.ID,
			From:   m.self.ID,
			Reason: ReasonBusy,
		})
		if err != nil {
			slog.Warn("sending busy", "call_id", p.CallID, "error", err)
		}
		return
	}

	s := newSession(p.CallID, p.From, true)
	offer := p.Offer
	s.offer = &offer
	m.current = s
	m.setState(s, StateRinging, "")
	m.startTimer(s)

	in := Incoming{CallID: p.CallID, Caller: p.From}
	m.notes = append(m.notes, func() { m.incoming.Publish(in) })
}

func (m *Manager) handleAnswer(data json.RawMessage) {
	var p models.CallAnswer
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("malformed call-answer", "error", err)
		return
	}

	m.lock()
	defer m.unlock()

	s := m.current
	if s == nil || s.id != p.CallID || s.incoming || s.state != StateInitiating || s.pc == nil {
		slog.Debug("dropping call-answer", "call_id", p.CallID)
		return
	}

	if err := s.applyRemote(p.Answer); err != nil {
		m.signalEnd(s, ReasonFailed)
		m.end(s, ReasonFailed)
		m.notifyError(fmt.Errorf("apply answer: %w", err))
		return
	}
	m.setState(s, StateConnecting, "")
}

func (m *Manager) handleCandidate(data json.RawMessage) {
	var p models.CallICECandidate
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("malformed call-ice-candidate", "error", err)
		return
	}

	m.lock()
	defer m.unlock()

	s := m.current
	if s == nil || s.id != p.CallID {
		slog.Debug("dropping ice candidate for unknown call", "call_id", p.CallID)
		return
	}
	s.addRemoteCandidate(p.Candidate)
}

func (m *Manager) handleEnd(data json.RawMessage) {
	var p models.CallEnd
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("malformed call-end", "error", err)
		return
	}

	m.lock()
	defer m.unlock()

	s := m.current
	if s == nil || s.id != p.CallID {
		return
	}
	reason := p.Reason
	if reason == "" {
		reason = ReasonHangup
	}
	m.end(s, reason)
}

func (m *Manager) handleDisconnect(json.RawMessage) {
	m.lock()
	defer m.unlock()

	if s := m.current; s != nil {
		m.end(s, "disconnected")
	}
}

func (m *Manager) handleLocalCandidate(s *session, c webrtc.ICECandidateInit) {
	m.lock()
	defer m.unlock()

	if m.current != s {
		return
	}
	if !s.signaled {
		s.outbox = append(s.outbox, c)
		return
	}
	m.postCandidate(s, c)
}

func (m *Manager) handlePeerState(s *session, state webrtc.PeerConnectionState) {
	m.lock()
	defer m.unlock()

	if m.current != s {
		return
	}
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if s.state == StateConnecting {
			if s.timer != nil {
				s.timer.Stop()
				s.timer = nil
			}
			m.setState(s, StateActive, "")
		}
	case webrtc.PeerConnectionStateFailed:
		m.signalEnd(s, ReasonFailed)
		m.end(s, ReasonFailed)
		m.notifyError(errors.New("peer connection failed"))
	}
}

func (m *Manager) handleTrack(s *session, t RemoteTrack) {
	m.lock()
	defer m.unlock()

	if m.current != s {
		return
	}
	t.CallID = s.id
	s.remote = append(s.remote, t)
	m.notes = append(m.notes, func() { m.tracks.Publish(t) })
}

func (m *Manager) expire(s *session) {
	m.lock()
	defer m.unlock()

	if m.current != s {
		return
	}
	switch s.state {
	case StateInitiating, StateRinging, StateConnecting:
		slog.Info("call timed out", "call_id", s.id, "state", s.state)
		m.signalEnd(s, ReasonTimeout)
		m.end(s, ReasonTimeout)
	}
}

// prepare acquires local media and a peer connection. It runs without mu.
func (m *Manager) prepare(ctx context.Context) (LocalStream, PeerConnection, error) {
	stream, err := m.media.GetUserMedia(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		return nil, nil, fmt.Errorf("get user media: %w", err)
	}
	pc, err := m.peers.NewPeerConnection()
	if err != nil {
		stream.Stop()
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}
	return stream, pc, nil
}

func (m *Manager) attach(s *session, stream LocalStream, pc PeerConnection) {
	s.stream = stream
	s.pc = pc

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) { m.handleLocalCandidate(s, c) })
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) { m.handlePeerState(s, state) })
	pc.OnTrack(func(t RemoteTrack) { m.handleTrack(s, t) })

	for _, track := range stream.Tracks() {
		if err := pc.AddTrack(track); err != nil {
			slog.Warn("adding local track", "call_id", s.id, "track_id", track.ID(), "error", err)
		}
	}
}

// flushOutbox sends local candidates gathered before the offer or answer went out.
func (m *Manager) flushOutbox(s *session) {
	s.signaled = true
	outbox := s.outbox
	s.outbox = nil
	for _, c := range outbox {
		m.postCandidate(s, c)
	}
}

func (m *Manager) postCandidate(s *session, c webrtc.ICECandidateInit) {
	err := m.sig.Post(models.EventCallICECandidate, models.CallICECandidate{
		CallID:    s.id,
		To:        s.peer.ID,
		From:      m.self.ID,
		Candidate: c,
	})
	if err != nil {
		slog.Warn("sending ice candidate", "call_id", s.id, "error", err)
	}
}

func (m *Manager) startTimer(s *session) {
	if m.opts.Timeout > 0 {
		s.timer = time.AfterFunc(m.opts.Timeout, func() { m.expire(s) })
	}
}

func (m *Manager) signal(name string, data any) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.SignalTimeout)
	defer cancel()
	return m.sig.Emit(ctx, name, data)
}

func (m *Manager) signalEnd(s *session, reason string) {
	err := m.signal(models.EventCallEnd, models.CallEnd{
		CallID: s.id,
		To:     s.peer.ID,
		From:   m.self.ID,
		Reason: reason,
	})
	if err != nil {
		slog.Warn("sending call-end", "call_id", s.id, "error", err)
	}
}

// end releases the session and reports it as ended. Callers hold mu.
func (m *Manager) end(s *session, reason string) {
	s.release()
	if m.current == s {
		m.current = nil
	}
	m.setState(s, StateEnded, reason)
	slog.Info("call ended", "call_id", s.id, "reason", reason)
}

func (m *Manager) setState(s *session, state State, reason string) {
	s.state = state
	m.state = state
	u := s.update(reason)
	m.notes = append(m.notes, func() { m.updates.Publish(u) })
}

func (m *Manager) notifyError(err error) {
	slog.Error("call failed", "error", err)
	m.notes = append(m.notes, func() { m.errs.Publish(err) })
}

func (m *Manager) lock() {
	m.mu.Lock()
}

// unlock releases mu and then delivers notifications queued while it was held.
func (m *Manager) unlock() {
	notes := m.notes
	m.notes = nil
	m.mu.Unlock()
	for _, n := range notes {
		n()
	}
}
