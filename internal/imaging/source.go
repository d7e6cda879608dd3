package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrSourceEnded is returned by Sample when the underlying source has no
// further frames (stream ended, directory exhausted, or source closed).
// The scanning loop treats it as a clean stop, not a failure.
var ErrSourceEnded = errors.New("frame source ended")

// FrameSource is the pull-based input the scanning loop samples from.
//
// Sample returns the current frame, or ErrSourceEnded once the source is
// exhausted or closed. Implementations own the underlying camera or file
// resource; Close releases it and causes all subsequent Sample calls to
// return ErrSourceEnded. Sample is called from a single goroutine.
type FrameSource interface {
	Sample() (image.Image, error)
	Close() error
}

// DirSource replays a directory of still images as a scanning session,
// one image per Sample call, in lexical filename order.
//
// Images are decoded lazily and each decoded frame is cached so that a
// repeated Sample of the same position (via Rewind) avoids redundant disk
// reads. Supported formats are PNG, JPEG, and GIF; files with other
// extensions are skipped during construction.
type DirSource struct {
	mu     sync.Mutex
	paths  []string
	cache  map[string]image.Image
	pos    int
	closed bool
}

// NewDirSource scans dir for image files and returns a source that plays
// them back in lexical order. Returns an error if the directory cannot be
// read or contains no images.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".png", ".jpg", ".jpeg", ".gif":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	sort.Strings(paths)

	return &DirSource{
		paths: paths,
		cache: make(map[string]image.Image),
	}, nil
}

// Len returns the number of frames the source will play.
func (s *DirSource) Len() int { return len(s.paths) }

// Sample returns the next frame in sequence, or ErrSourceEnded once every
// frame has been played or the source is closed.
func (s *DirSource) Sample() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pos >= len(s.paths) {
		return nil, ErrSourceEnded
	}

	path := s.paths[s.pos]
	s.pos++

	if img, ok := s.cache[path]; ok {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}

	s.cache[path] = img
	return img, nil
}

// Rewind resets playback to the first frame. It has no effect on a closed
// source.
func (s *DirSource) Rewind() {
	s.mu.Lock()
	s.pos = 0
	s.mu.Unlock()
}

// Close releases the source. Subsequent Sample calls return ErrSourceEnded.
func (s *DirSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cache = nil
	s.mu.Unlock()
	return nil
}
