/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package themestore is a reference implementation of the §6 "Theme
// supplier contract" — list_files(theme_ref) and preset_overlay(preset_ref)
// — backed by GORM/SQLite. It stands in for the theme-folder-scanning
// collaborator spec.md explicitly keeps external to the core (§1); the
// engine never imports this package directly: cmd/sonorium hands a Store
// to the Session Controller, which sees it only through the
// session.ThemeSupplier interface it satisfies.
package themestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/synssins/sonorium.dev/internal/mediaengine"
)

// ErrUnknownTheme / ErrUnknownPreset are the §7 control-plane errors,
// rejected before any Channel state changes.
var (
	ErrUnknownTheme  = errors.New("themestore: unknown theme")
	ErrUnknownPreset = errors.New("themestore: unknown preset")
)

// ThemeRecord is the GORM-mapped persisted theme, matching the style of
// the teacher's models package (table-tagged structs, string UUID keys).
type ThemeRecord struct {
	ID   string `gorm:"type:text;primaryKey"`
	Name string `gorm:"type:text;not null"`

	LongFileThresholdSeconds  float64 `gorm:"default:60"`
	ShortFileThresholdSeconds float64 `gorm:"default:10"`

	Tracks []TrackRecord `gorm:"foreignKey:ThemeID"`
}

func (ThemeRecord) TableName() string { return "themes" }

// TrackRecord is one file within a ThemeRecord, with its track settings
// flattened onto the row (spec.md §3's Track Settings fields).
type TrackRecord struct {
	ID      string `gorm:"type:text;primaryKey"`
	ThemeID string `gorm:"type:text;index"`
	Path    string `gorm:"type:text;not null"`

	Volume       float32 `gorm:"default:1"`
	Presence     float32 `gorm:"default:0.5"`
	PlaybackMode string  `gorm:"default:auto"`
	SeamlessLoop bool
	Exclusive    bool
	Muted        bool

	PresencePeriod       float64 `gorm:"default:90"`
	PresenceFadeDuration float64 `gorm:"default:10"`
}

func (TrackRecord) TableName() string { return "theme_tracks" }

// PresetRecord is a named overlay of track settings for a theme (§3's
// Preset concept), keyed by (theme_id, track_path).
type PresetRecord struct {
	ID      string `gorm:"type:text;primaryKey"`
	ThemeID string `gorm:"type:text;index"`
	Name    string `gorm:"type:text;not null"`

	Overlays []PresetOverlayRecord `gorm:"foreignKey:PresetID"`
}

func (PresetRecord) TableName() string { return "presets" }

// PresetOverlayRecord overrides a subset of fields for one track path
// within a preset. Nullable columns represent "leave unchanged".
type PresetOverlayRecord struct {
	ID       string  `gorm:"type:text;primaryKey"`
	PresetID string  `gorm:"type:text;index"`
	Path     string  `gorm:"type:text;not null"`
	Volume   *float32
	Presence *float32
	Muted    *bool
}

func (PresetOverlayRecord) TableName() string { return "preset_overlays" }

// Store implements the theme supplier contract against a GORM/SQLite
// database, following the teacher's db-backed service constructor style
// (NewService(db, logger)).
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps an already-migrated *gorm.DB.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "themestore").Logger()}
}

// Migrate runs GORM auto-migration for the themestore's tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&ThemeRecord{}, &TrackRecord{}, &PresetRecord{}, &PresetOverlayRecord{})
}

// ListFiles implements list_files(theme_ref) → ordered list of
// {path, settings_snapshot}.
func (s *Store) ListFiles(ctx context.Context, themeRef string) ([]mediaengine.TrackFile, error) {
	var theme ThemeRecord
	err := s.db.WithContext(ctx).Preload("Tracks").First(&theme, "id = ?", themeRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownTheme
	}
	if err != nil {
		return nil, fmt.Errorf("themestore: list files: %w", err)
	}

	files := make([]mediaengine.TrackFile, 0, len(theme.Tracks))
	for _, t := range theme.Tracks {
		files = append(files, mediaengine.TrackFile{
			Path: t.Path,
			Settings: mediaengine.TrackSettings{
				Path:                      t.Path,
				Volume:                    t.Volume,
				Presence:                  t.Presence,
				PlaybackMode:              mediaengine.PlaybackMode(t.PlaybackMode),
				SeamlessLoop:              t.SeamlessLoop,
				Exclusive:                 t.Exclusive,
				Muted:                     t.Muted,
				PresencePeriod:            t.PresencePeriod,
				PresenceFadeDuration:      t.PresenceFadeDuration,
				LongFileThresholdSeconds:  theme.LongFileThresholdSeconds,
				ShortFileThresholdSeconds: theme.ShortFileThresholdSeconds,
			},
		})
	}
	return files, nil
}

// PresetOverlay implements preset_overlay(preset_ref) → partial settings
// map to overlay on defaults, keyed by track path.
func (s *Store) PresetOverlay(ctx context.Context, presetRef string) (map[string]mediaengine.PresetOverlay, error) {
	var preset PresetRecord
	err := s.db.WithContext(ctx).Preload("Overlays").First(&preset, "id = ?", presetRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownPreset
	}
	if err != nil {
		return nil, fmt.Errorf("themestore: preset overlay: %w", err)
	}

	out := make(map[string]mediaengine.PresetOverlay, len(preset.Overlays))
	for _, o := range preset.Overlays {
		out[o.Path] = mediaengine.PresetOverlay{
			Volume:   o.Volume,
			Presence: o.Presence,
			Muted:    o.Muted,
		}
	}
	return out, nil
}
