// Package capture defines the contract with the external audio capture
// source. The orchestration core never owns capture internals; it acquires a
// stream per source key and consumes chunks until the stream is closed.
package capture

import (
	"context"
	"errors"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/audio"
)

// ErrNoStreamAvailable reports that the capture source could not provide a
// stream for the requested source key.
var ErrNoStreamAvailable = errors.New("no capture stream available")

// Stream is a live capture stream exclusively owned by one session. Chunks
// are emitted on a fixed cadence while the stream is active; the channel is
// closed when the underlying source goes away. Close is idempotent.
type Stream interface {
	Chunks() <-chan audio.Chunk
	Close() error
}

// Source provides capture streams keyed by media source.
type Source interface {
	Begin(ctx context.Context, sourceKey string) (Stream, error)
}
