// Package media provides local audio and video for a call from files on
// disk, standing in for a camera and microphone.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/Revaiowo/streamRTC/internal/session"
)

const streamID = "streamrtc"

// FileSource acquires media from an IVF (VP8) video file and an Ogg (Opus)
// audio file. Either may be empty. Each file loops until the handle stops.
type FileSource struct {
	VideoFile   string
	AudioFile   string
	ReceiveOnly bool
	Logger      *slog.Logger
}

// Acquire validates the files, creates one track per file and starts
// writing samples to them.
func (s *FileSource) Acquire(ctx context.Context) (session.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "media")

	streamCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{cancel: cancel}

	if s.ReceiveOnly {
		logger.Info("receive-only, no local media")
		return h, nil
	}
	if s.VideoFile == "" && s.AudioFile == "" {
		cancel()
		return nil, fmt.Errorf("%w: no video or audio file configured", session.ErrNoDevice)
	}

	var inputs []input
	if s.VideoFile != "" {
		inputs = append(inputs, input{path: s.VideoFile, mime: pion.MimeTypeVP8, id: "video", open: openIVF})
	}
	if s.AudioFile != "" {
		inputs = append(inputs, input{path: s.AudioFile, mime: pion.MimeTypeOpus, id: "audio", open: openOgg})
	}

	for _, in := range inputs {
		// Open once up front so a bad file fails Acquire instead of the stream.
		r, err := in.open(in.path)
		if err != nil {
			cancel()
			return nil, err
		}
		r.Close()

		track, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: in.mime}, in.id, streamID)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %s track: %v", session.ErrCaptureFailed, in.id, err)
		}
		h.tracks = append(h.tracks, track)

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			stream(streamCtx, logger.With("track", in.id, "file", in.path), track, in)
		}()
	}

	logger.Info("local media acquired", "video", s.VideoFile, "audio", s.AudioFile)
	return h, nil
}

// Handle is the acquired media. Stop ends every stream.
type Handle struct {
	tracks []pion.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (h *Handle) Tracks() []pion.TrackLocal {
	return h.tracks
}

func (h *Handle) Stop() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
}

type input struct {
	path string
	mime string
	id   string
	open func(path string) (sampleReader, error)
}

type sampleReader interface {
	Next() (media.Sample, error)
	Close() error
}

func stream(ctx context.Context, logger *slog.Logger, track *pion.TrackLocalStaticSample, in input) {
	for {
		r, err := in.open(in.path)
		if err != nil {
			logger.Warn("reopen failed", "error", err)
			return
		}
		err = play(ctx, track, r)
		r.Close()

		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, io.EOF) {
			logger.Warn("stream stopped", "error", err)
			return
		}
	}
}

// play writes samples at their natural rate until the reader runs out or
// ctx is done.
func play(ctx context.Context, track *pion.TrackLocalStaticSample, r sampleReader) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		sample, err := r.Next()
		if err != nil {
			return err
		}
		if err := track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return err
		}

		wait := sample.Duration
		if wait <= 0 {
			wait = defaultPageTime
		}
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
