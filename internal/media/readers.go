package media

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/Revaiowo/streamRTC/internal/session"
)

const (
	vp8FourCC       = "VP80"
	opusSampleRate  = 48000
	defaultPageTime = 20 * time.Millisecond
)

type ivfSource struct {
	f     *os.File
	r     *ivfreader.IVFReader
	frame time.Duration
}

func openIVF(path string) (sampleReader, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}

	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", session.ErrCaptureFailed, path, err)
	}
	if header.FourCC != vp8FourCC {
		f.Close()
		return nil, fmt.Errorf("%w: %s: unsupported codec %q, want VP8", session.ErrCaptureFailed, path, header.FourCC)
	}
	if header.TimebaseDenominator == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s: zero timebase", session.ErrCaptureFailed, path)
	}

	frame := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	return &ivfSource{f: f, r: r, frame: frame}, nil
}

func (s *ivfSource) Next() (media.Sample, error) {
	frame, _, err := s.r.ParseNextFrame()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: s.frame}, nil
}

func (s *ivfSource) Close() error { return s.f.Close() }

type oggSource struct {
	f           *os.File
	r           *oggreader.OggReader
	lastGranule uint64
}

func openOgg(path string) (sampleReader, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}

	r, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", session.ErrCaptureFailed, path, err)
	}
	return &oggSource{f: f, r: r}, nil
}

func (s *oggSource) Next() (media.Sample, error) {
	page, header, err := s.r.ParseNextPage()
	if err != nil {
		return media.Sample{}, err
	}

	duration := defaultPageTime
	if header.GranulePosition > s.lastGranule {
		samples := header.GranulePosition - s.lastGranule
		duration = time.Duration(samples) * time.Second / opusSampleRate
	}
	s.lastGranule = header.GranulePosition

	return media.Sample{Data: page, Duration: duration}, nil
}

func (s *oggSource) Close() error { return s.f.Close() }
