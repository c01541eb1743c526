/*
Copyright (C) 2026 Sonorium Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sonorium",
	Short: "Multi-zone ambient soundscape server",
	Long: `Sonorium mixes looping ambient recordings into per-zone audio streams.

Each Channel binds a theme (a set of layered tracks with independent
playback modes) to zero or more listeners, crossfading between takes and
enforcing mutual exclusion between tracks that should never overlap.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
