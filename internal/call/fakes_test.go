package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"svyaz/internal/event"
	"svyaz/internal/models"
)

type sent struct {
	name string
	data json.RawMessage
}

// fakeSignaler records outbound signals and lets the test inject inbound ones.
type fakeSignaler struct {
	mu    sync.Mutex
	out   []sent
	feeds map[string]*event.Feed[json.RawMessage]
	err   error
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{feeds: map[string]*event.Feed[json.RawMessage]{}}
}

func (f *fakeSignaler) Emit(_ context.Context, name string, data any) error {
	return f.Post(name, data)
}

func (f *fakeSignaler) Post(name string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	raw, _ := json.Marshal(data)
	f.out = append(f.out, sent{name: name, data: raw})
	return nil
}

func (f *fakeSignaler) On(name string, fn func(json.RawMessage)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	feed, ok := f.feeds[name]
	if !ok {
		feed = &event.Feed[json.RawMessage]{}
		f.feeds[name] = feed
	}
	return feed.Subscribe(fn)
}

func (f *fakeSignaler) deliver(t *testing.T, name string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.mu.Lock()
	feed := f.feeds[name]
	f.mu.Unlock()
	if feed != nil {
		feed.Publish(raw)
	}
}

func (f *fakeSignaler) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.out))
	for i, s := range f.out {
		names[i] = s.name
	}
	return names
}

func (f *fakeSignaler) last(name string, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.out) - 1; i >= 0; i-- {
		if f.out[i].name == name {
			return json.Unmarshal(f.out[i].data, v) == nil
		}
	}
	return false
}

// bus routes signals between endpoints by their "to" field. Each endpoint
// dispatches on its own goroutine like a transport reader.
type bus struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
}

func newBus() *bus {
	return &bus{endpoints: map[string]*endpoint{}}
}

type endpoint struct {
	bus   *bus
	feeds map[string]*event.Feed[json.RawMessage]
	mu    sync.Mutex
	inbox chan models.Frame
	done  chan struct{}
}

func (b *bus) join(t *testing.T, userID string) *endpoint {
	e := &endpoint{
		bus:   b,
		feeds: map[string]*event.Feed[json.RawMessage]{},
		inbox: make(chan models.Frame, 64),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.endpoints[userID] = e
	b.mu.Unlock()

	go func() {
		for {
			select {
			case f := <-e.inbox:
				e.mu.Lock()
				feed := e.feeds[f.Event]
				e.mu.Unlock()
				if feed != nil {
					feed.Publish(f.Data)
				}
			case <-e.done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(e.done) })
	return e
}

func (e *endpoint) Emit(_ context.Context, name string, data any) error {
	return e.Post(name, data)
}

func (e *endpoint) Post(name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var addr struct {
		To string `json:"to"`
	}
	_ = json.Unmarshal(raw, &addr)

	e.bus.mu.Lock()
	target := e.bus.endpoints[addr.To]
	e.bus.mu.Unlock()
	if target == nil {
		return errors.New("unknown peer")
	}
	target.inbox <- models.Frame{Event: name, Data: raw}
	return nil
}

func (e *endpoint) On(name string, fn func(json.RawMessage)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	feed, ok := e.feeds[name]
	if !ok {
		feed = &event.Feed[json.RawMessage]{}
		e.feeds[name] = feed
	}
	return feed.Subscribe(fn)
}

// fakePC reports itself connected once both descriptions are set.
// Callbacks fire on their own goroutines.
type fakePC struct {
	mu         sync.Mutex
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     int
	closed     bool
	connected  bool
	noConnect  bool

	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onTrack func(RemoteTrack)
}

func (p *fakePC) AddTrack(webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks++
	return nil
}

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	return p.setLocal(webrtc.SDPTypeOffer)
}

func (p *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	hasRemote := p.remote != nil
	p.mu.Unlock()
	if !hasRemote {
		return webrtc.SessionDescription{}, errors.New("no remote description")
	}
	return p.setLocal(webrtc.SDPTypeAnswer)
}

func (p *fakePC) setLocal(typ webrtc.SDPType) (webrtc.SessionDescription, error) {
	desc := webrtc.SessionDescription{Type: typ, SDP: "v=0 " + typ.String()}
	p.mu.Lock()
	p.local = &desc
	onICE := p.onICE
	p.mu.Unlock()

	if onICE != nil {
		mid := "0"
		go onICE(webrtc.ICECandidateInit{Candidate: "candidate:local-" + typ.String(), SDPMid: &mid})
	}
	p.maybeConnect()
	return desc, nil
}

func (p *fakePC) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	p.remote = &desc
	p.mu.Unlock()
	p.maybeConnect()
	return nil
}

func (p *fakePC) maybeConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noConnect || p.connected || p.closed || p.local == nil || p.remote == nil || p.onState == nil {
		return
	}
	p.connected = true
	onState, onTrack := p.onState, p.onTrack
	go func() {
		if onTrack != nil {
			onTrack(RemoteTrack{ID: "audio", StreamID: "remote", Kind: "audio"})
		}
		onState(webrtc.PeerConnectionStateConnected)
	}()
}

func (p *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePC) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = fn
}

func (p *fakePC) OnTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePC) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePC) fail() {
	p.mu.Lock()
	onState := p.onState
	p.mu.Unlock()
	go onState(webrtc.PeerConnectionStateFailed)
}

func (p *fakePC) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePC) remoteCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.candidates))
	for i, c := range p.candidates {
		out[i] = c.Candidate
	}
	return out
}

type fakeFactory struct {
	mu        sync.Mutex
	pcs       []*fakePC
	noConnect bool
}

func (f *fakeFactory) NewPeerConnection() (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := &fakePC{noConnect: f.noConnect}
	f.pcs = append(f.pcs, pc)
	return pc, nil
}

func (f *fakeFactory) pc(i int) *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pcs[i]
}

type fakeStream struct {
	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) Tracks() []webrtc.TrackLocal {
	audio, _ := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local")
	video, _ := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "local")
	return []webrtc.TrackLocal{audio, video}
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *fakeStream) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeMedia struct {
	mu      sync.Mutex
	calls   int
	err     error
	streams []*fakeStream
}

func (m *fakeMedia) GetUserMedia(context.Context, Constraints) (LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMedia) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
