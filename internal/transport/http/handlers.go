/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/synssins/sonorium.dev/internal/channelpool"
	"github.com/synssins/sonorium.dev/internal/session"
)

type playRequest struct {
	SessionID      string   `json:"session_id"`
	ThemeRef       string   `json:"theme_ref"`
	PresetRef      string   `json:"preset_ref"`
	Volume         float32  `json:"volume"`
	SpeakerTargets []string `json:"speaker_targets"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThemeRef == "" {
		writeError(w, http.StatusBadRequest, "theme_ref is required")
		return
	}

	sess, err := s.sessions.Play(r.Context(), session.PlayRequest{
		SessionID:      req.SessionID,
		ThemeRef:       req.ThemeRef,
		PresetRef:      req.PresetRef,
		Volume:         req.Volume,
		SpeakerTargets: req.SpeakerTargets,
	})
	if err != nil {
		if errors.Is(err, channelpool.ErrNoChannelAvailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	sess, ok := s.sessions.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s.sessions.Stop(id)
	w.WriteHeader(http.StatusNoContent)
}

type updateThemeRequest struct {
	ThemeRef  string `json:"theme_ref"`
	PresetRef string `json:"preset_ref"`
}

func (s *Server) handleUpdateTheme(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	var req updateThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThemeRef == "" {
		writeError(w, http.StatusBadRequest, "theme_ref is required")
		return
	}

	if err := s.sessions.UpdateTheme(r.Context(), id, req.ThemeRef, req.PresetRef); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func channelIDFromRequest(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "channel_id"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
