package handlers

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
}

var filenameStripRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Extension returns the lower-cased text after the last dot, or "" when
// the name has no dot.
func Extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

func AllowedFile(filename string) bool {
	return strings.Contains(filename, ".") && allowedExtensions[Extension(filename)]
}

// SecureFilename reduces filename to a flat ASCII name that is safe to join
// onto a directory. The result may be empty.
func SecureFilename(filename string) string {
	filename = norm.NFKD.String(filename)
	filename = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, filename)
	filename = strings.ReplaceAll(filename, string(filepath.Separator), " ")
	filename = strings.Join(strings.Fields(filename), "_")
	return strings.Trim(filenameStripRe.ReplaceAllString(filename, ""), "._")
}

// MIMEFromExtension picks the data URI type from the extension alone. It
// never looks at the bytes, so it can disagree with the real format.
func MIMEFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// sniffMismatch returns the detected type when it disagrees with declared.
func sniffMismatch(data []byte, declared string) (string, bool) {
	detected := mimetype.Detect(data)
	if detected.Is(declared) {
		return "", false
	}
	return detected.String(), true
}

// UploadStore keeps uploads on local disk for the life of one request.
type UploadStore struct {
	dir string
}

func NewUploadStore(dir string) *UploadStore {
	return &UploadStore{dir: dir}
}

func (s *UploadStore) Dir() string {
	return s.dir
}

type TempUpload struct {
	Path string
	Name string
}

// Save writes src under the upload directory, creating it if needed. The
// stored name carries a random prefix so concurrent uploads never collide.
func (s *UploadStore) Save(src io.Reader, filename string) (*TempUpload, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", s.dir, err)
	}

	name := SecureFilename(filename)
	if name == "" {
		name = "upload"
		if ext := Extension(filename); ext != "" {
			name += "." + ext
		}
	}

	path := filepath.Join(s.dir, uuid.NewString()+"_"+name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file %s: %w", path, err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close file %s: %w", path, err)
	}

	return &TempUpload{Path: path, Name: name}, nil
}

func (u *TempUpload) Remove() {
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove temp upload", "path", u.Path, "error", err)
	}
}
