package tts

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDownloadError_Classification(t *testing.T) {
	base := errors.New("503 from upstream")
	err := fmt.Errorf("chunk 2: %w", NewDownloadError("gtts", base))

	if !IsDownloadError(err) {
		t.Fatal("wrapped DownloadError not detected")
	}
	if !errors.Is(err, base) {
		t.Error("DownloadError does not unwrap to its cause")
	}
	if IsDownloadError(base) {
		t.Error("plain error classified as download error")
	}
}

func TestReturnCode_String(t *testing.T) {
	tests := []struct {
		code ReturnCode
		want string
	}{
		{OK, "ok"},
		{NoPhrases, "no_phrases"},
		{Download, "download"},
		{CallFailed, "call_failed"},
		{Abort, "abort"},
		{Expired, "expired"},
		{IOError, "io_error"},
		{ReturnCode(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ReturnCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestVoice_Locale(t *testing.T) {
	if got := (Voice{Language: "en", Territory: "us"}).Locale(); got != "en-US" {
		t.Errorf("Locale() = %q, want en-US", got)
	}
	if got := (Voice{Language: "de"}).Locale(); got != "de" {
		t.Errorf("Locale() = %q, want de", got)
	}
}

func TestTTSError(t *testing.T) {
	cause := errors.New("binary missing")
	err := NewTTSError(ErrorCodeEngineUnavailable, "espeak not found", cause).
		WithContext("engine", "espeak")

	if !errors.Is(err, cause) {
		t.Error("TTSError does not unwrap to its cause")
	}
	if !strings.HasPrefix(err.Error(), "ENGINE_UNAVAILABLE: espeak not found") {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Context["engine"] != "espeak" {
		t.Errorf("context not recorded: %v", err.Context)
	}
}
