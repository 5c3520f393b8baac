// Package upload stores uploaded files and turns them into text a model can read.
package upload

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind classifies an uploaded file.
type Kind string

const (
	KindImage    Kind = "image"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
	KindBinary   Kind = "binary"
)

// DefaultMaxExtractChars bounds the text extracted from a single file.
const DefaultMaxExtractChars = 20000

// sniffLen is how many bytes are inspected to classify unknown files.
const sniffLen = 512

var textExtensions = map[string]bool{
	".txt": true, ".log": true, ".csv": true, ".tsv": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".xml": true, ".html": true,
	".htm": true, ".ini": true, ".sql": true, ".go": true, ".py": true,
	".js": true, ".ts": true, ".tsx": true, ".jsx": true, ".java": true,
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".rb": true,
	".sh": true, ".css": true, ".kt": true, ".swift": true, ".php": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true,
}

// Result is the processed form of an uploaded file.
type Result struct {
	Text string // Prefixed with "[File: name]"
	Kind Kind
}

// Processor converts stored files into model-readable text.
type Processor struct {
	MaxExtractChars int
}

// NewProcessor creates a processor with the default extraction limit.
func NewProcessor() *Processor {
	return &Processor{MaxExtractChars: DefaultMaxExtractChars}
}

// Process reads the file at path and describes it. name is the original
// client-side filename, used for classification and the header line.
func (p *Processor) Process(path, name string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}

	kind := Classify(name, data)
	header := fmt.Sprintf("[File: %s]", name)

	switch kind {
	case KindImage:
		return Result{Kind: kind, Text: header + "\nAn image is attached to this message."}, nil

	case KindMarkdown:
		doc, err := ParseMarkdown(string(data))
		if err != nil {
			return Result{}, fmt.Errorf("parse markdown: %w", err)
		}
		return Result{Kind: kind, Text: header + "\n" + p.limit(doc.Render())}, nil

	case KindText:
		return Result{Kind: kind, Text: header + "\n" + p.limit(string(data))}, nil

	default:
		mimeType := http.DetectContentType(head(data))
		return Result{
			Kind: KindBinary,
			Text: fmt.Sprintf("%s\nBinary file (%s, %d bytes); its contents cannot be shown.", header, mimeType, len(data)),
		}, nil
	}
}

// Classify decides the kind of a file from its name and leading bytes.
func Classify(name string, data []byte) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".md" || ext == ".markdown":
		return KindMarkdown
	case imageExtensions[ext]:
		return KindImage
	case textExtensions[ext]:
		return KindText
	}

	sniffed := http.DetectContentType(head(data))
	if t, _, err := mime.ParseMediaType(sniffed); err == nil {
		sniffed = t
	}
	switch {
	case strings.HasPrefix(sniffed, "image/"):
		return KindImage
	case strings.HasPrefix(sniffed, "text/"):
		return KindText
	case utf8.Valid(head(data)) && !bytes.ContainsRune(head(data), 0):
		return KindText
	}
	return KindBinary
}

// CombineText joins what the user typed with the processed file text.
func CombineText(message, processed string) string {
	return strings.TrimSpace(message + "\n\n" + processed)
}

func (p *Processor) limit(s string) string {
	s = strings.TrimSpace(s)
	if p.MaxExtractChars <= 0 || utf8.RuneCountInString(s) <= p.MaxExtractChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:p.MaxExtractChars]) + "\n[truncated]"
}

func head(data []byte) []byte {
	if len(data) > sniffLen {
		return data[:sniffLen]
	}
	return data
}
