package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes a capture file that passed validation.
type FileInfo struct {
	Source Source
	// Path is the absolute path to the file
	Path string
	// Name is the filename (without directory)
	Name string
	Size int64
}

var extensions = map[Source][]string{
	SourceCamera:      {".ivf"},
	SourceScreenshare: {".ivf"},
	SourceAudio:       {".ogg", ".opus"},
}

// Validate checks every configured file exists, is readable and has the
// container the source expects. All problems are reported together.
func (f Files) Validate() ([]FileInfo, error) {
	var infos []FileInfo
	var problems []string

	for _, src := range Sources {
		path := f.path(src)
		if path == "" {
			continue
		}
		info, err := validateFile(src, path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("media file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return infos, nil
}

func validateFile(src Source, path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	want := extensions[src]
	found := false
	for _, e := range want {
		if e == ext {
			found = true
			break
		}
	}
	if !found {
		return FileInfo{}, fmt.Errorf("%s: %s needs a %s file", path, src, strings.Join(want, " or "))
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if stat.Size() == 0 {
		return FileInfo{}, fmt.Errorf("%s: file is empty", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Source: src,
		Path:   absPath,
		Name:   filepath.Base(absPath),
		Size:   stat.Size(),
	}, nil
}
