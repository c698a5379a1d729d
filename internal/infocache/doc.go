// Package infocache holds a short-lived in-memory cache of extracted
// video metadata keyed by source URL.
package infocache
