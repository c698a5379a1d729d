// Package textutil provides text processing utilities shared across Spool:
// filename sanitization, human-readable byte and duration formatting, and
// parsing of the size/clock tokens the extraction engine prints.
package textutil
