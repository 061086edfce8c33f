package video

import (
	"os"

	"monuguard/internal/pipeline"
)

// NewOpener returns a SourceOpener that reads directories as image sequences
// at sequenceFPS and hands everything else (files, URLs) to openFile.
func NewOpener(openFile pipeline.SourceOpener, sequenceFPS float64) pipeline.SourceOpener {
	return func(path string) (pipeline.FrameSource, error) {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			seq, err := OpenSequence(path, sequenceFPS)
			if err != nil {
				return nil, err
			}
			return seq, nil
		}
		return openFile(path)
	}
}
