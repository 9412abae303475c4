package screening

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/jwalitptl/retina-api/pkg/errors"
)

// URLPrefix is the path under which stored images are served.
const URLPrefix = "/uploads"

// ImageStore keeps uploaded retinal images on local disk.
type ImageStore struct {
	dir      string
	maxBytes int64
	newName  func() string
}

func NewImageStore(dir string, maxBytes int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &ImageStore{
		dir:      dir,
		maxBytes: maxBytes,
		newName:  func() string { return uuid.New().String() },
	}, nil
}

// Dir is the directory images are written to.
func (s *ImageStore) Dir() string {
	return s.dir
}

// Save sniffs r, rejects anything that is not an image or exceeds the
// size limit, and returns the reference the image is served under.
func (s *ImageStore) Save(_ context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", errors.BadRequest("failed to read image", err)
	}
	if len(data) == 0 {
		return "", errors.BadRequest("image is empty", nil)
	}
	if int64(len(data)) > s.maxBytes {
		return "", errors.BadRequest(fmt.Sprintf("image exceeds %d bytes", s.maxBytes), nil)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", errors.BadRequest(fmt.Sprintf("unsupported file type %s", mtype.String()), nil)
	}

	name := s.newName() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Internal(fmt.Errorf("failed to write image: %w", err))
	}
	return path.Join(URLPrefix, name), nil
}

// Open returns the stored bytes for ref.
func (s *ImageStore) Open(ref string) (io.ReadCloser, error) {
	name := strings.TrimPrefix(ref, URLPrefix+"/")
	if name == ref || name == "" || strings.ContainsAny(name, `/\`) {
		return nil, errors.NotFound("image", nil)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("image", err)
		}
		return nil, errors.Internal(err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
