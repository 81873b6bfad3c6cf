package capture

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// replayGrabber decodes image files from a directory in lexical order.
type replayGrabber struct {
	mu    sync.Mutex
	files []string
	next  int
}

// Grab decodes the next file; io.EOF once every file has been returned.
func (g *replayGrabber) Grab() (image.Image, error) {
	g.mu.Lock()
	if g.next >= len(g.files) {
		g.mu.Unlock()
		return nil, io.EOF
	}
	path := g.files[g.next]
	g.next++
	g.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("capture: decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// ListFrames returns the PNG and JPEG files of dir sorted by name.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("capture: no frames in %s", dir)
	}
	return files, nil
}

// NewReplayService replays the image files in dir at fps frames per second.
// The service stops by itself after the last file.
func NewReplayService(logger *slog.Logger, dir string, fps int, handler FrameHandler) (CaptureService, error) {
	files, err := ListFrames(dir)
	if err != nil {
		return nil, err
	}
	return NewCaptureService(logger, &replayGrabber{files: files}, fps, handler), nil
}
