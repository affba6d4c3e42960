// Package status proxies backend health and agent-status queries, trading
// accuracy for availability: outages become fixed fallback payloads.
package status
