// Package store provides entity persistence for flux-gateway: conversations,
// messages, agent status records, and indexed documents. Two backings
// implement the same Store interface, an in-memory map store and a SQLite
// store, both drawing identifiers from one shared monotonic sequence.
package store
