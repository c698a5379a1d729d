// Package services provides shared helpers for Spool's job-processing
// services: sentinel error markers with API error-code classification and
// context annotations for correlation.
package services
