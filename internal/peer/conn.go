package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/session"
)

const pliInterval = 3 * time.Second

// TrackSource is implemented by media handles that carry local tracks.
type TrackSource interface {
	Tracks() []pion.TrackLocal
}

// Stats counts what arrived on the remote tracks.
type Stats struct {
	Packets uint64
	Bytes   uint64
}

// Conn adapts a pion PeerConnection to session.PeerConnection. Descriptions
// are JSON of webrtc.SessionDescription and candidates JSON of
// webrtc.ICECandidateInit, the same shapes a browser produces.
type Conn struct {
	pc     *pion.PeerConnection
	logger *slog.Logger

	mu          sync.Mutex
	onCandidate func(json.RawMessage)
	onTrack     func(string)

	packets atomic.Uint64
	bytes   atomic.Uint64

	closed    chan struct{}
	closeOnce sync.Once
}

// Factory returns a session.PeerFactory that builds every connection from
// one shared API.
func Factory(cfg config.Client, opts ...Option) (session.PeerFactory, error) {
	o := newOptions(opts)
	api, err := newAPI(o)
	if err != nil {
		return nil, err
	}
	conf := Configuration(cfg, o.relay)

	return func(media session.LocalMedia) (session.PeerConnection, error) {
		return New(api, conf, media, o.logger)
	}, nil
}

// New creates a connection with the media's tracks attached. Without tracks
// the connection receives audio and video only.
func New(api *pion.API, conf pion.Configuration, media session.LocalMedia, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := api.NewPeerConnection(conf)
	if err != nil {
		return nil, session.NewError("create peer connection", err)
	}

	c := &Conn{
		pc:     pc,
		logger: logger.With("component", "peer"),
		closed: make(chan struct{}),
	}

	var tracks []pion.TrackLocal
	if src, ok := media.(TrackSource); ok {
		tracks = src.Tracks()
	}
	if err := c.attach(tracks); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnICECandidate(c.handleCandidate)
	pc.OnTrack(c.handleTrack)
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		c.logger.Debug("connection state changed", "state", state.String())
	})

	return c, nil
}

func (c *Conn) attach(tracks []pion.TrackLocal) error {
	if len(tracks) == 0 {
		for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeVideo, pion.RTPCodecTypeAudio} {
			if _, err := c.pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
				Direction: pion.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return session.WrapError("add transceiver", err, kind.String())
			}
		}
		return nil
	}

	for _, track := range tracks {
		sender, err := c.pc.AddTrack(track)
		if err != nil {
			return session.WrapError("add track", err, track.Kind().String())
		}

		// Reading RTCP lets the interceptors process reports for this sender.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (c *Conn) CreateLocalDescription(kind session.DescriptionKind) (json.RawMessage, error) {
	var (
		desc pion.SessionDescription
		err  error
	)
	switch kind {
	case session.DescriptionOffer:
		desc, err = c.pc.CreateOffer(nil)
	case session.DescriptionAnswer:
		desc, err = c.pc.CreateAnswer(nil)
	default:
		return nil, fmt.Errorf("unknown description kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(desc)
}

func (c *Conn) SetLocalDescription(raw json.RawMessage) error {
	desc, err := decodeDescription(raw)
	if err != nil {
		return err
	}
	return c.pc.SetLocalDescription(desc)
}

func (c *Conn) SetRemoteDescription(raw json.RawMessage) error {
	desc, err := decodeDescription(raw)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *Conn) AddRemoteCandidate(raw json.RawMessage) error {
	var candidate pion.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(candidate)
}

func (c *Conn) OnLocalCandidate(f func(json.RawMessage)) {
	c.mu.Lock()
	c.onCandidate = f
	c.mu.Unlock()
}

func (c *Conn) OnRemoteTrack(f func(string)) {
	c.mu.Lock()
	c.onTrack = f
	c.mu.Unlock()
}

// Stats returns the packet and byte counts received so far.
func (c *Conn) Stats() Stats {
	return Stats{Packets: c.packets.Load(), Bytes: c.bytes.Load()}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.pc.Close()
	})
	return err
}

func (c *Conn) handleCandidate(candidate *pion.ICECandidate) {
	// nil marks the end of gathering.
	if candidate == nil {
		return
	}

	raw, err := json.Marshal(candidate.ToJSON())
	if err != nil {
		c.logger.Warn("failed to encode candidate", "error", err)
		return
	}

	c.mu.Lock()
	f := c.onCandidate
	c.mu.Unlock()
	if f != nil {
		f(raw)
	}
}

func (c *Conn) handleTrack(track *pion.TrackRemote, _ *pion.RTPReceiver) {
	kind := track.Kind().String()
	c.logger.Info("remote track", "kind", kind, "codec", track.Codec().MimeType, "ssrc", uint32(track.SSRC()))

	c.mu.Lock()
	f := c.onTrack
	c.mu.Unlock()
	if f != nil {
		f(kind)
	}

	if track.Kind() == pion.RTPCodecTypeVideo {
		go c.requestKeyframes(track)
	}
	go c.drain(track)
}

// requestKeyframes sends picture loss indications so the sender produces a
// keyframe soon after the track starts and periodically afterwards.
func (c *Conn) requestKeyframes(track *pion.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()

	for {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
		if err := c.pc.WriteRTCP(pli); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("write rtcp", "error", err)
			}
			return
		}

		select {
		case <-ticker.C:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) drain(track *pion.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("remote track ended", "kind", track.Kind().String(), "error", err)
			}
			return
		}
		c.observe(pkt)
	}
}

func (c *Conn) observe(pkt *rtp.Packet) {
	c.packets.Add(1)
	c.bytes.Add(uint64(len(pkt.Payload)))
}

func decodeDescription(raw json.RawMessage) (pion.SessionDescription, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("decode session description: %w", err)
	}
	if desc.SDP == "" {
		return desc, errors.New("session description has no sdp")
	}
	return desc, nil
}
