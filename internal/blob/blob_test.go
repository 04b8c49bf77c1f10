package blob

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndOpen(t *testing.T) {
	s, err := New(t.TempDir(), "http://localhost:8080/storage/attachments/")
	require.NoError(t, err)

	att, err := s.Put("chat-1/abc.txt", []byte("hello"), "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/storage/attachments/chat-1/abc.txt", att.URL)
	assert.True(t, strings.HasPrefix(att.MimeType, "text/plain"), att.MimeType)

	rc, ctype, err := s.Open("chat-1/abc.txt")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.True(t, strings.HasPrefix(ctype, "text/plain"), ctype)
}

func TestDeclaredTypeWins(t *testing.T) {
	s, err := New(t.TempDir(), "http://h")
	require.NoError(t, err)

	att, err := s.Put("c/file", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", att.MimeType)
}

func TestSniffWithoutExtension(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", DetectType("c/noext", png, ""))
}

func TestCleanRejectsEscapes(t *testing.T) {
	for _, p := range []string{"", "../etc/passwd", "a/../../b", "a/./b", `a\b`, "a//b", "/"} {
		_, err := Clean(p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}
	key, err := Clean("chat/uuid.png")
	require.NoError(t, err)
	assert.Equal(t, "chat/uuid.png", key)
}

func TestOpenMissing(t *testing.T) {
	s, err := New(t.TempDir(), "http://h")
	require.NoError(t, err)
	_, _, err = s.Open("nope/x.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRefusesExistingKey(t *testing.T) {
	s, err := New(t.TempDir(), "http://h")
	require.NoError(t, err)

	_, err = s.Put("c/doc.txt", []byte("original"), "")
	require.NoError(t, err)
	_, err = s.Put("c/doc.txt", []byte("replaced"), "")
	require.ErrorIs(t, err, ErrExists)

	rc, _, err := s.Open("c/doc.txt")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "original", string(body))
}

func TestInline(t *testing.T) {
	for ctype, want := range map[string]bool{
		"image/png":                 true,
		"text/plain; charset=utf-8": true,
		"application/pdf":           true,
		"video/mp4":                 true,
		"text/html":                 false,
		"image/svg+xml":             false,
		"application/javascript":    false,
		"":                          false,
	} {
		assert.Equal(t, want, Inline(ctype), ctype)
	}
	assert.Equal(t, "chat-1", Owner("chat-1/a.png"))
}
