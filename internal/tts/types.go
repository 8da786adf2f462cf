package tts

import "strings"

// EngineType represents the speech engine selection.
type EngineType string

const (
	// EngineESpeak is the espeak-ng command line synthesizer.
	EngineESpeak EngineType = "espeak"

	// EnginePiper is the Piper offline neural synthesizer.
	EnginePiper EngineType = "piper"

	// EngineGTTS is Google Translate TTS through gtts-cli.
	EngineGTTS EngineType = "gtts"

	// EngineGoogle is the Google Cloud Text-to-Speech API.
	EngineGoogle EngineType = "google"

	// EngineMock is an in-process engine for tests and dry runs.
	EngineMock EngineType = "mock"
)

// String returns the engine code.
func (e EngineType) String() string {
	return string(e)
}

// Voice carries the language and voice selection for one utterance.
type Voice struct {
	// Language is the lowercase ISO 639 code (e.g., "en").
	Language string

	// Territory is the lowercase region code (e.g., "us"), may be empty.
	Territory string

	// Name is the engine specific voice identifier.
	Name string

	// Gender is a hint for engines that select voices by gender.
	Gender string
}

// Locale returns the voice's locale in "en-US" form.
func (v Voice) Locale() string {
	if v.Territory == "" {
		return v.Language
	}
	return v.Language + "-" + strings.ToUpper(v.Territory)
}

// ReturnCode is the symbolic result of a synthesis or playback attempt.
type ReturnCode int

const (
	// OK indicates success.
	OK ReturnCode = iota

	// NoPhrases indicates there was nothing to synthesize.
	NoPhrases

	// Download indicates a remote or codec failure.
	Download

	// CallFailed indicates a setup failure before any engine call.
	CallFailed

	// Abort indicates a process-wide shutdown.
	Abort

	// Expired indicates the phrase was invalidated mid-flight.
	Expired

	// IOError indicates the cache destination could not be written.
	IOError
)

// String returns the string representation of the return code.
func (c ReturnCode) String() string {
	switch c {
	case OK:
		return "ok"
	case NoPhrases:
		return "no_phrases"
	case Download:
		return "download"
	case CallFailed:
		return "call_failed"
	case Abort:
		return "abort"
	case Expired:
		return "expired"
	case IOError:
		return "io_error"
	default:
		return "unknown"
	}
}
