// Package queue serializes playback and seeding tasks onto one consumer.
//
// Tasks receive a sequence number when they are dispatched, not when they
// are queued. EmptyQueue drops everything still queued and moves the
// canceled-sequence watermark up to the last dispatched task, so a task
// already running can notice it has been superseded at its next checkpoint.
package queue
