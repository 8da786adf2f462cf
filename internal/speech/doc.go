// Package speech turns phrases into cached audio.
//
// A Coordinator looks phrases up in the content cache and, on a miss,
// synthesizes them on a background goroutine. The caller waits only up to
// its timeout; the background job always runs to completion so the result
// is cached for the next request. At most one job writes a given cache
// path at a time.
package speech
