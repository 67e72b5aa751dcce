// ABOUTME: Filesystem enumeration for playlist population
// ABOUTME: Walks a directory tree collecting audio files as tracks
package playlist

import (
	"io/fs"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".aiff": true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".aac":  true,
	".m4a":  true,
}

// ScanDirectory walks dir and returns one track per audio file, in lexical
// path order, titled by file name without the extension.
func ScanDirectory(dir string) ([]Track, error) {
	var tracks []Track
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		name := d.Name()
		tracks = append(tracks, Track{
			Path:  path,
			Title: strings.TrimSuffix(name, filepath.Ext(name)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}
