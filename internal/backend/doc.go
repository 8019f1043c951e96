// Package backend implements the typed HTTP client for the whisper
// transcription and translation service. Every operation routes through the
// request coordinator for dedup, timeout, and retry control.
package backend
