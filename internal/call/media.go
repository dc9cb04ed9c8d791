package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const opusFrame = 20 * time.Millisecond

// Opus TOC byte for a single 20ms CELT frame followed by silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SampleDevices produces static-sample tracks instead of capturing hardware.
// The audio track carries Opus silence; the video track is negotiated but
// carries no frames.
type SampleDevices struct{}

func (SampleDevices) GetUserMedia(ctx context.Context, c Constraints) (LocalStream, error) {
	if !c.Audio && !c.Video {
		return nil, errors.New("no media requested")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "svyaz-" + uuid.NewString()
	s := &sampleStream{done: make(chan struct{})}

	if c.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, video)
	}

	if c.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, audio)
		go s.writeSilence(audio)
	}

	return s, nil
}

type sampleStream struct {
	tracks []webrtc.TrackLocal
	done   chan struct{}
	once   sync.Once
}

func (s *sampleStream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

func (s *sampleStream) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *sampleStream) writeSilence(track *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// Errors before the track is bound are expected and ignored.
			_ = track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame})
		}
	}
}
