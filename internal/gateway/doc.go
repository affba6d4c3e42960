// Package gateway exposes the mediation layer over HTTP: conversation and
// message CRUD, the deduplicating chat endpoint, the document index, and
// the health/agent-status proxy with its fallback payloads.
package gateway
