// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the color palette and lipgloss styles for dschat.

All colors are lipgloss AdaptiveColor values. The theme follows the terminal
background unless ui.theme forces "dark" or "light".

# Usage

	theme := styles.NewTheme(cfg.UI.Theme)
	label := theme.UserLabel.Render("You")
	renderer, _ := glamour.NewTermRenderer(glamour.WithStandardStyle(theme.GlamourStyle()))
*/
package styles
