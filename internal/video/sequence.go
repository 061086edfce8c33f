// Package video opens frame sources for the analysis pipeline.
package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

const jpegQuality = 90

var sequenceExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// SequenceSource reads a directory of still images as a video, in file name order
type SequenceSource struct {
	dir    string
	files  []string
	fps    float64
	pos    int
	closed bool
}

// OpenSequence opens the images in dir as frames played back at fps.
// A directory without images is an empty video, not an error.
func OpenSequence(dir string, fps float64) (*SequenceSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sequence dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sequenceExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	logger.Debug("Sequence", "Opened %s (%d frames at %.2f fps)", dir, len(files), fps)

	return &SequenceSource{
		dir:   dir,
		files: files,
		fps:   fps,
		pos:   -1,
	}, nil
}

// Info implements pipeline.FrameSource
func (s *SequenceSource) Info() pipeline.SourceInfo {
	return pipeline.SourceInfo{TotalFrames: len(s.files), FPS: s.fps}
}

// Grab advances to the next image
func (s *SequenceSource) Grab() bool {
	if s.closed || s.pos+1 >= len(s.files) {
		return false
	}
	s.pos++
	return true
}

// Retrieve returns the current image as JPEG. JPEG files are passed through.
func (s *SequenceSource) Retrieve() (*pipeline.FrameData, bool) {
	if s.closed || s.pos < 0 || s.pos >= len(s.files) {
		return nil, false
	}

	path := s.files[s.pos]
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Sequence", "Failed to read %s: %v", path, err)
		return nil, false
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		logger.Warn("Sequence", "Failed to decode %s: %v", path, err)
		return nil, false
	}
	if format == "jpeg" {
		return &pipeline.FrameData{Index: s.pos, Data: raw, Width: cfg.Width, Height: cfg.Height}, true
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		logger.Warn("Sequence", "Failed to decode %s: %v", path, err)
		return nil, false
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		logger.Warn("Sequence", "Failed to encode %s: %v", path, err)
		return nil, false
	}

	return &pipeline.FrameData{Index: s.pos, Data: buf.Bytes(), Width: cfg.Width, Height: cfg.Height}, true
}

// Close implements pipeline.FrameSource
func (s *SequenceSource) Close() error {
	s.closed = true
	return nil
}

var _ pipeline.FrameSource = (*SequenceSource)(nil)
