// Package phrase models one utterance and its lifecycle.
//
// Every Phrase carries a serial number drawn from a Tracker. The tracker also
// holds the expired-serial watermark: a phrase whose serial is below the
// watermark is expired, and every checkpoint in the pipeline abandons it.
package phrase
