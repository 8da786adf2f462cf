package tts

import (
	"errors"
	"fmt"
)

// Common speech errors
var (
	// ErrExpired indicates the phrase or task was superseded.
	ErrExpired = errors.New("phrase expired")

	// ErrInvalidEngine indicates an unknown engine was specified
	ErrInvalidEngine = errors.New("invalid speech engine specified")

	// ErrEngineNotAvailable indicates the selected engine binary or credentials are missing
	ErrEngineNotAvailable = errors.New("selected speech engine is not available")

	// ErrEmptyText indicates an engine was asked to voice nothing
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrUnsupportedFormat indicates a player cannot handle a file type
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// DownloadError is returned by engines when the remote service or the
// codec step fails. The coordinator maps it to Download.
type DownloadError struct {
	Engine string
	Err    error
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: download failed: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError wraps err as a download failure of engine.
func NewDownloadError(engine string, err error) *DownloadError {
	return &DownloadError{Engine: engine, Err: err}
}

// IsDownloadError reports whether err is a download-class failure.
func IsDownloadError(err error) bool {
	var de *DownloadError
	return errors.As(err, &de)
}

// TTSError represents an engine error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Engine errors
	ErrorCodeEngineFailure     ErrorCode = "ENGINE_FAILURE"
	ErrorCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"

	// Audio errors
	ErrorCodeAudioFailure ErrorCode = "AUDIO_FAILURE"
	ErrorCodeAudioFormat  ErrorCode = "AUDIO_FORMAT"

	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// NewTTSError creates a new error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	e.Context[key] = value
	return e
}
