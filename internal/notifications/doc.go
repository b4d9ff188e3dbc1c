// Package notifications delivers pipeline events to ntfy.
//
// NewService returns a no-op Service when no topic is configured, so callers
// can publish unconditionally. Completed-entry events are suppressed unless
// on_success is enabled; failures and exhausted retries always go out.
package notifications
