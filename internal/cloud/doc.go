// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the exchange client for OpenAI-compatible chat completions
// endpoints (DeepSeek by default).
//
// One call to Send is one HTTP POST: a system prompt and the user's text go
// out with stream disabled and a fixed temperature, and the content of the
// first choice comes back. Nothing is cached and nothing is retried.
//
// # Key Types
//
//   - Client: configured endpoint, key, model and prompt
//   - TransportError, NetworkError, MalformedResponseError: the three ways an
//     exchange can fail, matched with errors.Is against ErrTransport,
//     ErrNetwork and ErrMalformedResponse
//   - FailureKind: Classify(err) result for display and JSON output
//
// # Usage
//
//	client := cloud.NewClient(cloud.DefaultEndpoint, apiKey).
//	    WithModel("deepseek-chat")
//	reply, err := client.Send(ctx, "Hello!")
//	if errors.Is(err, cloud.ErrTransport) {
//	    fmt.Println("status", cloud.StatusCode(err))
//	}
//
// # Security
//
// The API key is sent only in the Authorization header. Logs carry a SHA-256
// fingerprint of it and never the request or response body.
package cloud
