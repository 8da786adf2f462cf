// Package engines contains implementations of the speech synthesizers.
// espeak and Piper run offline; gtts and Google Cloud TTS call remote
// services and report their failures as *tts.DownloadError. Each engine
// implements tts.Synthesizer from the parent package.
package engines
