// Package export writes the rendered chat transcript to a document.
//
// The format is picked from the file extension: .docx produces a Word
// document, .md a Markdown file.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const Title = "Chat History"

var (
	// ErrEmptyTranscript is returned when there is nothing to export
	ErrEmptyTranscript = errors.New("no chat content to export")
	ErrUnknownFormat   = errors.New("unknown export format")
)

// Entry is one rendered transcript block
type Entry struct {
	Speaker string
	Text    string
}

// Write exports entries to path, choosing the format by extension. A path
// without extension gets .docx appended. The final path is returned.
func Write(path string, entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "", ErrEmptyTranscript
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		path += ".docx"
		ext = ".docx"
	}

	var (
		data []byte
		err  error
	)
	switch ext {
	case ".docx":
		data, err = Docx(entries)
	case ".md", ".markdown":
		data = Markdown(entries)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, ext)
	}
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}

// Markdown renders entries as a Markdown document
func Markdown(entries []Entry) []byte {
	var sb strings.Builder
	sb.WriteString("# " + Title + "\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("**%s:**\n\n", e.Speaker))
		sb.WriteString(strings.TrimRight(e.Text, "\n"))
		sb.WriteString("\n\n")
	}
	return []byte(sb.String())
}
