//go:build unix

package engines

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// fakeBinary writes an executable shell script and returns its path.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "fake")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestESpeakEngine_Synthesize(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeBinary(t, `echo "$@" > `+argsFile+`; printf RIFF; cat`)

	e, err := NewESpeakEngine(ESpeakConfig{Binary: bin}, nil, nil)
	if err != nil {
		t.Fatalf("NewESpeakEngine() error = %v", err)
	}

	voice := tts.Voice{Language: "en", Territory: "us", Gender: "female"}
	audio, err := e.Synthesize(context.Background(), "hello there", voice)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "RIFFhello there" {
		t.Errorf("audio = %q", audio)
	}

	args, _ := os.ReadFile(argsFile)
	for _, want := range []string{"-v en-us+f3", "-s 175", "--stdout"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestESpeakEngine_Speak(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spoken")
	bin := fakeBinary(t, `cat > `+out)

	e, err := NewESpeakEngine(ESpeakConfig{Binary: bin}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Speak(context.Background(), "say it", tts.Voice{Language: "en"}, nil); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "say it" {
		t.Errorf("spoken = %q", got)
	}
}

func TestESpeakEngine_Failure(t *testing.T) {
	bin := fakeBinary(t, `echo broken >&2; exit 3`)
	e, err := NewESpeakEngine(ESpeakConfig{Binary: bin}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Synthesize(context.Background(), "x", tts.Voice{})
	var ttsErr *tts.TTSError
	if !errors.As(err, &ttsErr) || ttsErr.Code != tts.ErrorCodeEngineFailure {
		t.Errorf("Synthesize() error = %v, want engine failure", err)
	}
	if tts.IsDownloadError(err) {
		t.Error("local engine failure classified as download error")
	}
}

func TestESpeakEngine_Validation(t *testing.T) {
	if _, err := NewESpeakEngine(ESpeakConfig{Binary: "espeak", Speed: 10}, nil, nil); err == nil {
		t.Error("speed 10 accepted")
	}
	if _, err := NewESpeakEngine(ESpeakConfig{Binary: "espeak", Pitch: 120}, nil, nil); err == nil {
		t.Error("pitch 120 accepted")
	}
}

func TestESpeakVoice(t *testing.T) {
	tests := []struct {
		voice tts.Voice
		want  string
	}{
		{tts.Voice{}, "en"},
		{tts.Voice{Language: "de", Territory: "AT"}, "de-at"},
		{tts.Voice{Language: "en", Gender: "m"}, "en+m3"},
		{tts.Voice{Language: "en", Name: "mb-en1"}, "mb-en1"},
	}
	for _, tt := range tests {
		if got := espeakVoice(tt.voice); got != tt.want {
			t.Errorf("espeakVoice(%+v) = %q, want %q", tt.voice, got, tt.want)
		}
	}
}

func TestPiperEngine_NewPiperEngine(t *testing.T) {
	tempDir := t.TempDir()
	modelPath := filepath.Join(tempDir, "test-model.onnx")
	if err := os.WriteFile(modelPath, []byte("fake model"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		config  PiperConfig
		wantErr bool
	}{
		{"valid config", PiperConfig{ModelPath: modelPath}, false},
		{"missing model path", PiperConfig{}, true},
		{"non-existent model", PiperConfig{ModelPath: "/non/existent/model.onnx"}, true},
		{"bad length scale", PiperConfig{ModelPath: modelPath, LengthScale: 9}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewPiperEngine(tt.config, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPiperEngine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if engine != nil {
				_ = engine.Close()
			}
		})
	}
}

func TestPiperEngine_Synthesize(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "voice.onnx")
	if err := os.WriteFile(modelPath, []byte("fake model"), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := fakeBinary(t, `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output_file) out="$2"; shift ;;
  esac
  shift
done
printf RIFF > "$out"
cat >> "$out"`)

	e, err := NewPiperEngine(PiperConfig{Binary: bin, ModelPath: modelPath, TempDir: t.TempDir()}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	audio, err := e.Synthesize(context.Background(), "piped text", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "RIFFpiped text" {
		t.Errorf("audio = %q", audio)
	}
	if e.FileType() != "wav" || e.Name() != "piper" {
		t.Errorf("Name/FileType = %s/%s", e.Name(), e.FileType())
	}
}

func TestGTTSEngine_Synthesize(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeBinary(t, `echo "$@" > `+argsFile+`; printf ID3; cat`)

	e, err := NewGTTSEngine(GTTSConfig{Binary: bin, RequestsPerMinute: 6000}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	audio, err := e.Synthesize(context.Background(), "bonjour", tts.Voice{Language: "fr", Territory: "fr"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "ID3bonjour" {
		t.Errorf("audio = %q", audio)
	}
	args, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(args), "--lang fr --tld fr") {
		t.Errorf("args = %q", args)
	}
}

func TestGTTSEngine_FailureIsDownloadError(t *testing.T) {
	bin := fakeBinary(t, `echo "429 Too Many Requests" >&2; exit 1`)
	e, err := NewGTTSEngine(GTTSConfig{Binary: bin, RequestsPerMinute: 6000}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Synthesize(context.Background(), "hello", tts.Voice{Language: "en"})
	if !tts.IsDownloadError(err) {
		t.Errorf("Synthesize() error = %v, want DownloadError", err)
	}
}

func TestGTTSEngine_RateLimitHonorsContext(t *testing.T) {
	e, err := NewGTTSEngine(GTTSConfig{Binary: "true", RequestsPerMinute: 1}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Consume the burst.
	_ = e.rateLimiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.Synthesize(ctx, "hello", tts.Voice{}); err == nil {
		t.Error("Synthesize() succeeded while rate limited past deadline")
	}
}
