// Package policy defines the opt-in approval mode (ask vs auto fast path)
// consulted by the artifact gate service.
package policy
