/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/synssins/sonorium.dev/internal/listener"
)

// handleChannelStream attaches a fresh Listener Encoder to the requested
// Channel and streams its compressed output until the client disconnects,
// the listener is marked dead, or the request context is cancelled. This
// mirrors the teacher's mount-based HTTP streaming loop (flush after every
// write, no buffering of unsent data beyond the listener's own queue).
func (s *Server) handleChannelStream(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	ch := s.pool.Channel(channelID)
	if ch == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}

	cfg := listener.Config{
		SampleRate:    s.listenerCfg.SampleRate,
		Channels:      s.listenerCfg.Channels,
		BitrateBPS:    s.listenerCfg.BitrateBPS,
		BufferSeconds: s.listenerCfg.BufferSeconds,
		DeadAfterDrop: s.listenerCfg.DeadAfterDrop,
		GStreamerBin:  s.listenerCfg.GStreamerBin,
	}

	l, err := listener.New(r.Context(), uuid.NewString(), cfg, s.logger)
	if err != nil {
		s.logger.Error().Err(err).Int("channel_id", channelID).Msg("failed to start listener encoder")
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}
	ch.AttachListener(l)
	defer func() {
		ch.DetachListener(l.ID())
		_ = l.Close()
	}()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("icy-br", strconv.Itoa(s.listenerCfg.BitrateBPS/1000))
	w.Header().Del("Content-Length")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	for {
		chunk, err := l.Read(r.Context())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, listener.ErrDropped) {
				return
			}
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleChannelWebRTC upgrades the request to a WebSocket signaling
// session and joins the caller to the requested Channel's shared WebRTC
// broadcast, lazily starting that Channel's Opus encoder and Broadcaster on
// first use (§4.5's WebRTC alternate backend).
func (s *Server) handleChannelWebRTC(w http.ResponseWriter, r *http.Request) {
	channelID, err := channelIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	ch := s.pool.Channel(channelID)
	if ch == nil {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}

	bc, err := s.webrtcMgr.Broadcaster(r.Context(), channelID, ch)
	if err != nil {
		s.logger.Error().Err(err).Int("channel_id", channelID).Msg("failed to start webrtc broadcast")
		writeError(w, http.StatusInternalServerError, "failed to start webrtc broadcast")
		return
	}

	bc.HandleSignaling(w, r)
}
