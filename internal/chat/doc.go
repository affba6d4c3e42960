// Package chat orchestrates a chat turn: it deduplicates identical resends
// within a 30-second window, persists the user message before invoking the
// inference backend, and persists the assistant reply on success.
package chat
