// Package audio handles audio payload formats and per-session chunk history.
// It implements WAV (PCM-16 mono) encoding and decoding for backend dispatch,
// amplitude measurement for the speech gate, and a bounded ring buffer that
// retains the most recent chunks of a capture session.
package audio
