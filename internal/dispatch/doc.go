// Package dispatch coordinates outbound backend calls. It collapses
// concurrent identical requests into a single in-flight call, bounds each
// call with a timeout, and provides exponential-backoff retry.
package dispatch
