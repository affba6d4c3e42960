// Package docindex stores indexed document records (content plus
// provenance). Embedding and search are the inference backend's concern.
package docindex
