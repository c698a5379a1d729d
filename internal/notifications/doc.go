// Package notifications delivers push notifications about job outcomes
// through ntfy. When no topic is configured every notification is a no-op.
package notifications
