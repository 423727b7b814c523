package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepChat/internal/attachment"
)

var transcript = []Entry{
	{Speaker: "You", Text: "Hello <b> & welcome"},
	{Speaker: "Assistant", Text: "line one\nline two\n"},
}

func TestWriteDocxRoundTrip(t *testing.T) {
	path, err := Write(filepath.Join(t.TempDir(), "chat"), transcript)
	require.NoError(t, err)
	assert.Equal(t, ".docx", filepath.Ext(path))

	text, err := attachment.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Chat History\nYou:\nHello <b> & welcome\nAssistant:\nline one\nline two", text)
}

func TestWriteMarkdown(t *testing.T) {
	path, err := Write(filepath.Join(t.TempDir(), "chat.md"), transcript)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"# Chat History\n\n**You:**\n\nHello <b> & welcome\n\n**Assistant:**\n\nline one\nline two\n\n",
		string(data))
}

func TestWriteRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := Write(filepath.Join(dir, "empty.docx"), nil)
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	_, err = Write(filepath.Join(dir, "chat.pdf"), transcript)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
