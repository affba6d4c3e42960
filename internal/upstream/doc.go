// Package upstream is the HTTP client for the external inference backend.
// The backend's reasoning is opaque here; it is modeled purely as RPCs
// with success or failure outcomes.
package upstream
