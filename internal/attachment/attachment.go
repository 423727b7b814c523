// Package attachment extracts plain text from uploaded files.
package attachment

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedType is returned for files other than .docx, .pdf and .txt
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoText          = errors.New("file contains no text")
)

// Extensions lists the accepted file extensions
var Extensions = []string{".docx", ".pdf", ".txt"}

// ReadError reports a file that could not be turned into text
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("could not read %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Supported reports whether path has an accepted extension
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Read returns the text content of a .docx, .pdf or .txt file
func Read(path string) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		text, err = readTxt(path)
	case ".pdf":
		text, err = readPDF(path)
	case ".docx":
		text, err = readDocx(path)
	default:
		err = ErrUnsupportedType
	}
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	return text, nil
}

func readTxt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return string(data), nil
}

func readPDF(path string) (text string, err error) {
	// the pdf reader panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	return buf.String(), nil
}

func readDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document body: %w", err)
		}
		defer rc.Close()
		return paragraphs(rc)
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}

// paragraphs joins the text runs of a WordprocessingML body, one line per
// paragraph. Only content inside w:r counts; property blocks such as the
// tab stops in w:pPr are skipped.
func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		out    []string
		line   strings.Builder
		inText bool
		inRun  int
		skip   int // depth inside a w:pPr or w:rPr subtree
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document body: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if skip > 0 {
				skip++
				continue
			}
			switch t.Name.Local {
			case "pPr", "rPr":
				skip = 1
			case "r":
				inRun++
			case "t":
				inText = inRun > 0
			case "tab":
				if inRun > 0 {
					line.WriteByte('\t')
				}
			case "br", "cr":
				if inRun > 0 {
					line.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if skip > 0 {
				skip--
				continue
			}
			switch t.Name.Local {
			case "r":
				inRun--
			case "t":
				inText = false
			case "p":
				out = append(out, line.String())
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if line.Len() > 0 {
		out = append(out, line.String())
	}
	return strings.Join(out, "\n"), nil
}
