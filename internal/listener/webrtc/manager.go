/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/synssins/sonorium.dev/internal/channel"
)

// ManagerConfig configures every Broadcaster/Sink pair the Manager creates.
type ManagerConfig struct {
	SampleRate   int
	Channels     int
	RTPBasePort  int
	GStreamerBin string
	STUNServer   string
	TURNServer   string
	TURNUsername string
	TURNPassword string
}

// broadcast bundles the per-Channel Sink (feeds PCM into an Opus encoder)
// and Broadcaster (relays the result to WebRTC peers) as one unit with its
// own dedicated loopback RTP port.
type broadcast struct {
	sink        *Sink
	broadcaster *Broadcaster
}

// Manager lazily creates one Sink/Broadcaster pair per Channel ID the first
// time a WebRTC peer asks to watch that Channel, and reuses it for every
// subsequent peer — unlike the MP3 Listener Encoder, WebRTC peers of the
// same Channel share one encoder and one broadcast track (§4.5's DOMAIN
// STACK entry for pion/webrtc).
type Manager struct {
	mu     sync.Mutex
	byID   map[int]*broadcast
	nextPt int

	cfg    ManagerConfig
	logger zerolog.Logger
}

// NewManager constructs a Manager. cfg.RTPBasePort is the first loopback
// UDP port handed out; each subsequent Channel gets cfg.RTPBasePort+n.
func NewManager(cfg ManagerConfig, logger zerolog.Logger) *Manager {
	if cfg.GStreamerBin == "" {
		cfg.GStreamerBin = "gst-launch-1.0"
	}
	return &Manager{
		byID:   make(map[int]*broadcast),
		cfg:    cfg,
		logger: logger.With().Str("component", "webrtc-manager").Logger(),
	}
}

// Broadcaster returns the Broadcaster for a Channel, creating and attaching
// its Sink on first use. ch is the Channel to attach the Sink to.
func (m *Manager) Broadcaster(ctx context.Context, channelID int, ch *channel.Channel) (*Broadcaster, error) {
	m.mu.Lock()
	if b, ok := m.byID[channelID]; ok {
		m.mu.Unlock()
		return b.broadcaster, nil
	}
	port := m.cfg.RTPBasePort + m.nextPt
	m.nextPt++
	m.mu.Unlock()

	bc, err := NewBroadcaster(Config{
		RTPPort:      port,
		STUNServer:   m.cfg.STUNServer,
		TURNServer:   m.cfg.TURNServer,
		TURNUsername: m.cfg.TURNUsername,
		TURNPassword: m.cfg.TURNPassword,
	}, m.logger)
	if err != nil {
		return nil, fmt.Errorf("webrtc manager: create broadcaster for channel %d: %w", channelID, err)
	}
	if err := bc.Start(ctx); err != nil {
		return nil, fmt.Errorf("webrtc manager: start broadcaster for channel %d: %w", channelID, err)
	}

	sinkCfg := DefaultSinkConfig(m.cfg.SampleRate, m.cfg.Channels, port)
	sinkCfg.GStreamerBin = m.cfg.GStreamerBin
	sink, err := NewSink(ctx, fmt.Sprintf("webrtc-%d", channelID), sinkCfg, m.logger)
	if err != nil {
		bc.Stop()
		return nil, fmt.Errorf("webrtc manager: create sink for channel %d: %w", channelID, err)
	}

	ch.AttachListener(sink)

	m.mu.Lock()
	m.byID[channelID] = &broadcast{sink: sink, broadcaster: bc}
	m.mu.Unlock()

	m.logger.Info().Int("channel_id", channelID).Int("rtp_port", port).Msg("webrtc broadcast pair started")
	return bc, nil
}

// Close stops every Sink and Broadcaster the Manager owns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.byID {
		_ = b.sink.Close()
		_ = b.broadcaster.Stop()
		delete(m.byID, id)
	}
}
