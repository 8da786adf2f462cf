package engines

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

type fakeSpeechClient struct {
	req    *texttospeechpb.SynthesizeSpeechRequest
	audio  []byte
	err    error
	closed bool
}

func (f *fakeSpeechClient) synthesize(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: f.audio}, nil
}

func (f *fakeSpeechClient) Close() error {
	f.closed = true
	return nil
}

func TestGoogleEngine_Request(t *testing.T) {
	client := &fakeSpeechClient{audio: []byte("ID3 audio")}
	e, err := newGoogleEngine(client, GoogleConfig{SpeakingRate: 1.25}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	audio, err := e.Synthesize(context.Background(), "good morning", tts.Voice{Language: "en", Territory: "gb", Gender: "female"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "ID3 audio" {
		t.Errorf("audio = %q", audio)
	}

	req := client.req
	if got := req.GetInput().GetText(); got != "good morning" {
		t.Errorf("input text = %q", got)
	}
	if got := req.GetVoice().GetLanguageCode(); got != "en-GB" {
		t.Errorf("language code = %q, want en-GB", got)
	}
	if got := req.GetVoice().GetSsmlGender(); got != texttospeechpb.SsmlVoiceGender_FEMALE {
		t.Errorf("gender = %v", got)
	}
	if got := req.GetAudioConfig().GetAudioEncoding(); got != texttospeechpb.AudioEncoding_MP3 {
		t.Errorf("encoding = %v", got)
	}
	if got := req.GetAudioConfig().GetSpeakingRate(); got != 1.25 {
		t.Errorf("speaking rate = %v", got)
	}

	_ = e.Close()
	if !client.closed {
		t.Error("Close() did not close the client")
	}
}

func TestGoogleEngine_ChirpSkipsTuning(t *testing.T) {
	client := &fakeSpeechClient{audio: []byte("x")}
	e, _ := newGoogleEngine(client, GoogleConfig{SpeakingRate: 2}, nil, nil)

	if _, err := e.Synthesize(context.Background(), "hi", tts.Voice{Language: "en", Name: "en-US-Chirp3-HD-Charon"}); err != nil {
		t.Fatal(err)
	}
	if got := client.req.GetAudioConfig().GetSpeakingRate(); got != 0 {
		t.Errorf("speaking rate = %v for chirp voice, want unset", got)
	}
}

func TestGoogleEngine_Errors(t *testing.T) {
	client := &fakeSpeechClient{err: errors.New("unavailable")}
	e, _ := newGoogleEngine(client, GoogleConfig{}, nil, nil)

	if _, err := e.Synthesize(context.Background(), "hi", tts.Voice{}); !tts.IsDownloadError(err) {
		t.Errorf("API failure error = %v, want DownloadError", err)
	}

	client.err = nil
	client.audio = nil
	if _, err := e.Synthesize(context.Background(), "hi", tts.Voice{}); !tts.IsDownloadError(err) {
		t.Errorf("empty audio error = %v, want DownloadError", err)
	}

	_, err := e.Synthesize(context.Background(), "  ", tts.Voice{})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("blank text error = %v, want ErrEmptyText", err)
	}
	var ttsErr *tts.TTSError
	if !errors.As(err, &ttsErr) || ttsErr.Code != tts.ErrorCodeInvalidInput {
		t.Errorf("blank text error = %v, want INVALID_INPUT", err)
	}

	if _, err := newGoogleEngine(client, GoogleConfig{SpeakingRate: 9}, nil, nil); err == nil {
		t.Error("speaking rate 9 accepted")
	}
}
