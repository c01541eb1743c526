/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/synssins/sonorium.dev/internal/themestore"
)

// Migrate applies the theme store's schema via GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&themestore.ThemeRecord{},
		&themestore.TrackRecord{},
		&themestore.PresetRecord{},
		&themestore.PresetOverlayRecord{},
	)
}
