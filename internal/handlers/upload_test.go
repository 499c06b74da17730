package handlers

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedFile(t *testing.T) {
	allowed := []string{"cat.png", "cat.jpg", "cat.jpeg", "CAT.PNG", "a.b.JpEg"}
	for _, name := range allowed {
		assert.True(t, AllowedFile(name), name)
	}

	rejected := []string{"notes.txt", "cat.gif", "png", "cat.png.exe", "cat.", ""}
	for _, name := range rejected {
		assert.False(t, AllowedFile(name), name)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", Extension("cat.PNG"))
	assert.Equal(t, "gz", Extension("a.tar.gz"))
	assert.Equal(t, "", Extension("cat."))
	assert.Equal(t, "", Extension("cat"))
}

func TestSecureFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "My cool movie.mov", want: "My_cool_movie.mov"},
		{in: "../../../etc/passwd", want: "etc_passwd"},
		{in: "i contain cool \u00fcml\u00e4uts.txt", want: "i_contain_cool_umlauts.txt"},
		{in: "cat.png", want: "cat.png"},
		{in: "  .hidden.jpg", want: "hidden.jpg"},
		{in: "\u732b.png", want: "png"},
		{in: "...", want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SecureFilename(tc.in), tc.in)
	}
}

func TestMIMEFromExtension(t *testing.T) {
	assert.Equal(t, "image/png", MIMEFromExtension("png"))
	assert.Equal(t, "image/png", MIMEFromExtension("PNG"))
	assert.Equal(t, "image/gif", MIMEFromExtension("gif"))
	assert.Equal(t, "image/jpeg", MIMEFromExtension("jpg"))
	assert.Equal(t, "image/jpeg", MIMEFromExtension("jpeg"))
	assert.Equal(t, "image/jpeg", MIMEFromExtension("bmp"))
}

func TestSniffMismatch(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	_, mismatch := sniffMismatch(pngHeader, "image/png")
	assert.False(t, mismatch)

	detected, mismatch := sniffMismatch(pngHeader, "image/jpeg")
	assert.True(t, mismatch)
	assert.Equal(t, "image/png", detected)
}

func TestUploadStoreSaveAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store := NewUploadStore(dir)

	upload, err := store.Save(bytes.NewReader([]byte("content")), "My cat.png")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(upload.Path))
	assert.Equal(t, "My_cat.png", upload.Name)
	assert.True(t, strings.HasSuffix(upload.Path, "_My_cat.png"))

	data, err := os.ReadFile(upload.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	upload.Remove()
	_, err = os.Stat(upload.Path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is harmless.
	upload.Remove()
}

func TestUploadStoreUniqueNames(t *testing.T) {
	store := NewUploadStore(t.TempDir())

	first, err := store.Save(bytes.NewReader([]byte("one")), "cat.png")
	require.NoError(t, err)
	second, err := store.Save(bytes.NewReader([]byte("two")), "cat.png")
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestUploadStoreEmptySanitizedName(t *testing.T) {
	store := NewUploadStore(t.TempDir())

	upload, err := store.Save(bytes.NewReader(nil), "猫猫")
	require.NoError(t, err)
	assert.Equal(t, "upload", upload.Name)

	upload, err = store.Save(bytes.NewReader(nil), "....jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpg", upload.Name)
}
