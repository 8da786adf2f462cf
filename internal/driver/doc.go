// Package driver is the front door of the speech pipeline. It turns text
// into phrases, queues them for the single dispatch worker, and voices
// each one through the cache, the engine, and the player.
//
// A phrase marked as an interrupt supersedes everything queued before it:
// older phrases are expired, the queue is emptied, and the current
// playback is stopped.
package driver
