// Package session implements the orchestration core: one capture session per
// media source, a throttled chunk pipeline from capture through the speech
// gate to the recognition backend, and subtitle delivery to the display sink.
package session
