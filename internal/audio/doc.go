// Package audio plays cached speech files.
//
// Three players implement tts.Player: a subprocess player that drives a
// command line tool (mpg123, aplay, paplay, afplay, mpv, ffplay), an oto
// player that decodes mp3 and wav in-process, and a mock player for tests.
package audio
