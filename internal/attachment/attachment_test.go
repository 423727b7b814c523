package attachment

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocx(t *testing.T, path, body string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestReadTxt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.TXT")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two"), 0o644))

	text, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestReadDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	writeDocx(t, path,
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t></w:r></w:p>`)

	text, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\na\tb", text)
}

func TestReadDocxIgnoresProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.docx")
	writeDocx(t, path,
		`<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/><w:tab w:val="right" w:pos="9360"/></w:tabs></w:pPr>`+
			`<w:r><w:rPr><w:b/></w:rPr><w:t>Hello</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>one</w:t><w:br/><w:t>two</w:t></w:r></w:p>`)

	text, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello\none\ntwo", text)
}

func TestReadPDF(t *testing.T) {
	text, err := Read(filepath.Join("testdata", "hello.pdf"))
	require.NoError(t, err)
	assert.Contains(t, text, "Hello PDF")
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip"), 0o644))

	notPDF := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("not a pdf"), 0o644))

	image := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(image, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	tests := []struct {
		name   string
		path   string
		wantIs error
	}{
		{name: "missing txt", path: filepath.Join(dir, "missing.txt"), wantIs: os.ErrNotExist},
		{name: "corrupt docx", path: notZip},
		{name: "corrupt pdf", path: notPDF},
		{name: "unsupported", path: image, wantIs: ErrUnsupportedType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(tc.path)
			require.Error(t, err)

			var readErr *ReadError
			require.True(t, errors.As(err, &readErr))
			assert.Equal(t, tc.path, readErr.Path)
			if tc.wantIs != nil {
				assert.ErrorIs(t, err, tc.wantIs)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.docx"))
	assert.True(t, Supported("A.PDF"))
	assert.True(t, Supported("dir/b.txt"))
	assert.False(t, Supported("c.doc"))
	assert.False(t, Supported("noext"))
}
