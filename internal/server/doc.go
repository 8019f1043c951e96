// Package server implements the HTTP API for monitoring and controlling the
// captioning service: session lifecycle, on-demand text translation, and
// metrics endpoints.
package server
