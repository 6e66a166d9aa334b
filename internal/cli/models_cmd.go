// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - List the models known for the default endpoint.
//
// Any identifier the endpoint accepts can be used with --model or
// api.model; this list is informational.

package cli

import (
	"fmt"

	"github.com/aiapi/dschat/internal/config"
	"github.com/aiapi/dschat/internal/model"
)

// HandleModels prints the known models, marking the configured one.
func HandleModels(s Streams, cfg *config.Config, args Args) error {
	models := model.ListModels()
	if args.JSON {
		return NewJSONResponse("models", ModelsData{
			Current: cfg.API.Model,
			Models:  models,
		}).Print(s.Out)
	}

	known := false
	for _, m := range models {
		marker := "  "
		if m.ID == cfg.API.Model {
			marker = SuccessStyle.Render("* ")
			known = true
		}
		fmt.Fprintln(s.Out, marker+m.String())
	}
	if !known {
		fmt.Fprintf(s.Out, "%s%s %s\n", SuccessStyle.Render("* "), cfg.API.Model, DimStyle.Render("(custom)"))
	}
	return nil
}
