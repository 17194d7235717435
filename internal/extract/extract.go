// Package extract converts raw document bytes into plain text, keyed by
// detected file type. Text and markdown are handled natively; other
// formats can be plugged in through Register.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyDocument     = errors.New("no text content extracted")
)

// FileType identifies a supported document format.
type FileType string

const (
	TypePDF      FileType = "pdf"
	TypeDOCX     FileType = "docx"
	TypeText     FileType = "txt"
	TypeMarkdown FileType = "md"
)

// contentTypes maps MIME content types to file types. Checked before
// the filename extension.
var contentTypes = map[string]FileType{
	"application/pdf": TypePDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": TypeDOCX,
	"text/plain":    TypeText,
	"text/markdown": TypeMarkdown,
}

var extensions = map[string]FileType{
	".pdf":  TypePDF,
	".docx": TypeDOCX,
	".txt":  TypeText,
	".md":   TypeMarkdown,
}

// DetectType resolves a file type from the MIME content type, falling
// back to the filename extension. Parameters like charset are ignored.
// Returns ErrUnsupportedFormat if neither matches a known format.
func DetectType(filename, contentType string) (FileType, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if t, ok := contentTypes[contentType]; ok {
		return t, nil
	}

	if dot := strings.LastIndex(filename, "."); dot != -1 {
		ext := strings.ToLower(filename[dot:])
		if t, ok := extensions[ext]; ok {
			return t, nil
		}
	}

	return "", fmt.Errorf("%w: %q (content type %q)", ErrUnsupportedFormat, filename, contentType)
}

// Extractor converts raw file bytes of a single format into plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// Service dispatches extraction to format-specific extractors.
type Service struct {
	extractors map[FileType]Extractor
	logger     *slog.Logger
}

// NewService creates an extraction service with text and markdown
// extractors registered. PDF and DOCX extractors must be registered by
// the caller.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractors: map[FileType]Extractor{
			TypeText:     plainText{},
			TypeMarkdown: newMarkdownExtractor(),
		},
		logger: logger,
	}
}

// Register adds or replaces the extractor for a file type.
func (s *Service) Register(t FileType, e Extractor) {
	s.extractors[t] = e
}

// Extract detects the file type and runs the matching extractor.
// The result is trimmed; an empty result is ErrEmptyDocument.
func (s *Service) Extract(content []byte, filename, contentType string) (string, error) {
	fileType, err := DetectType(filename, contentType)
	if err != nil {
		return "", err
	}

	extractor, ok := s.extractors[fileType]
	if !ok {
		return "", fmt.Errorf("%w: no extractor registered for %s", ErrUnsupportedFormat, fileType)
	}

	text, err := extractor.Extract(content)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", fileType, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyDocument, filename)
	}

	s.logger.Info("Extracted text", "filename", filename, "type", fileType, "chars", len(text))
	return text, nil
}

// plainText handles txt files as UTF-8 bytes.
type plainText struct{}

func (plainText) Extract(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	return string(content), nil
}
