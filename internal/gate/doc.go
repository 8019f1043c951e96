// Package gate implements the speech gate that filters silent audio chunks
// before they are dispatched to the transcription backend. The decision is a
// mean-absolute-amplitude check over the decoded payload.
package gate
