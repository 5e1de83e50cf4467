package rtc

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

// oggPageDuration paces sample writes; Opus pages in the files we care
// about carry 20ms of audio.
const oggPageDuration = 20 * time.Millisecond

// OpusFileSource loops an Ogg/Opus file as the sender's captured audio.
// It stands in for a microphone: the negotiation machinery only needs a
// track that produces samples.
type OpusFileSource struct {
	path  string
	track *webrtc.TrackLocalStaticSample
}

func NewOpusFileSource(path string) (*OpusFileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := oggreader.NewWith(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.Close()

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "micmove",
	)
	if err != nil {
		return nil, err
	}
	return &OpusFileSource{path: path, track: track}, nil
}

// Track is what a SenderSession attaches.
func (s *OpusFileSource) Track() webrtc.TrackLocal { return s.track }

// Stream pushes the file's pages into the track until ctx is canceled,
// looping at end of file.
func (s *OpusFileSource) Stream(ctx context.Context) error {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	for {
		if err := s.streamOnce(ctx, ticker); err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Str("module", "rtc.source").Str("file", s.path).Msg("looping audio file")
				continue
			}
			return err
		}
		return nil
	}
}

func (s *OpusFileSource) streamOnce(ctx context.Context, ticker *time.Ticker) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		pageData, pageHeader, err := ogg.ParseNextPage()
		if err != nil {
			return err
		}

		sampleCount := pageHeader.GranulePosition - lastGranule
		lastGranule = pageHeader.GranulePosition
		sampleDuration := time.Duration(sampleCount) * time.Second / 48000

		if err := s.track.WriteSample(media.Sample{Data: pageData, Duration: sampleDuration}); err != nil {
			return err
		}
	}
}
