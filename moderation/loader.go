package moderation

import (
	"bytes"
	"chat-core/errors"
	"embed"
	"io/fs"
	"path"
	"strings"
)

//go:embed censored/*.txt
var censoredFolder embed.FS

// Dictionary is the result of loading, with the languages found for logging.
type Dictionary struct {
	Words     []string
	Languages []string
}

// DefaultDictionary loads the word lists shipped with the binary.
func DefaultDictionary() (*Dictionary, error) {
	return LoadDictionaries(censoredFolder, "censored")
}

// LoadDictionaries reads every .txt file of dir as the dictionary of the
// language named after it ("fr.txt" is "fr"). Words are deduplicated.
func LoadDictionaries(fsys fs.FS, dir string) (*Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		words, err := ReadDictionary(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			unique[w] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(unique))
	for w := range unique {
		words = append(words, w)
	}
	return &Dictionary{Words: words, Languages: languages}, nil
}
