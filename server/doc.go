// Package server is the HTTP front of audioscribe: a Gin engine behind an
// h2c handler, a handler-level middleware stack, probe endpoints and the
// transcription routes.
//
// # Routes
//
//   - GET /ws/transcribe: WebSocket upload loop, any number of jobs
//   - GET /ws/transcribe-youtube: WebSocket remote URL job, one per connection
//   - POST /transcribe: single-shot multipart upload (field "file")
//   - GET /health, /ready, /alive, /info, /version, /metrics
//
// # Middleware
//
// Applied to every request, outermost first (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: X-Request-Id generation and propagation
//   - CORS: origin allow-list, also used to check WebSocket origins
//   - BodySizeLimit: request body cap
//   - RequestLogger: method, path, status and duration
//
// POST /transcribe is additionally rate limited per client IP.
package server
