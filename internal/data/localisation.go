package data

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// paradoxLanguages maps the directory names used by Paradox-style
// localisation to BCP 47 tags.
var paradoxLanguages = map[string]language.Tag{
	"english":      language.English,
	"french":       language.French,
	"german":       language.German,
	"spanish":      language.Spanish,
	"russian":      language.Russian,
	"simp_chinese": language.SimplifiedChinese,
	"braz_por":     language.BrazilianPortuguese,
	"polish":       language.Polish,
}

// Localisation holds the key → text pairs of one language.
type Localisation struct {
	language string
	tag      language.Tag
	entries  map[string]string
}

// LoadLocalisation picks the language under dir that best matches want (a
// BCP 47 tag such as "de-AT", or a directory name such as "german") and
// loads every *_l_<language>.yml file in it.
func LoadLocalisation(dir, want string) (*Localisation, error) {
	dirs, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read localisation dir: %w", err)
	}
	var names []string
	var tags []language.Tag
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if tag, ok := paradoxLanguages[d.Name()]; ok {
			names = append(names, d.Name())
			tags = append(tags, tag)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("localisation dir %s: no known languages", dir)
	}
	// The matcher falls back to its first tag; prefer English for that.
	if i := slices.Index(names, "english"); i > 0 {
		names[0], names[i] = names[i], names[0]
		tags[0], tags[i] = tags[i], tags[0]
	}

	name, tag := matchLanguage(names, tags, want)
	loc := &Localisation{language: name, tag: tag, entries: make(map[string]string, 256)}

	files, err := filepath.Glob(filepath.Join(dir, name, "*_l_"+name+".yml"))
	if err != nil {
		return nil, fmt.Errorf("glob localisation: %w", err)
	}
	slices.Sort(files)
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read localisation: %w", err)
		}
		if err := loc.parse(raw, name); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return loc, nil
}

func matchLanguage(names []string, tags []language.Tag, want string) (string, language.Tag) {
	if i := slices.Index(names, want); i >= 0 {
		return names[i], tags[i]
	}
	wantTag, err := language.Parse(want)
	if err != nil {
		wantTag = language.English
	}
	_, idx, _ := language.NewMatcher(tags).Match(wantTag)
	return names[idx], tags[idx]
}

// parse reads one file: a "l_<language>:" header then ` KEY:0 "Text"` lines.
// Later files override earlier keys.
func (l *Localisation) parse(raw []byte, name string) error {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	sc := bufio.NewScanner(bytes.NewReader(raw))
	header := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !header {
			if line != "l_"+name+":" {
				return fmt.Errorf("line %d: want header l_%s:, got %q", lineNo, name, line)
			}
			header = true
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("line %d: missing ':'", lineNo)
		}
		// Skip the version digits between ':' and the opening quote.
		open := strings.IndexByte(rest, '"')
		end := strings.LastIndexByte(rest, '"')
		if open < 0 || end <= open {
			return fmt.Errorf("line %d: missing quoted text", lineNo)
		}
		text := strings.ReplaceAll(rest[open+1:end], `\"`, `"`)
		l.entries[strings.TrimSpace(key)] = text
	}
	return sc.Err()
}

// Get returns the text for key.
func (l *Localisation) Get(key string) (string, bool) {
	s, ok := l.entries[key]
	return s, ok
}

// Text returns the text for key, or key itself when missing.
func (l *Localisation) Text(key string) string {
	if s, ok := l.entries[key]; ok {
		return s
	}
	return key
}

// Language returns the directory name of the loaded language.
func (l *Localisation) Language() string { return l.language }

func (l *Localisation) Tag() language.Tag { return l.tag }

func (l *Localisation) Count() int { return len(l.entries) }

// CountryKey and the helpers below build the keys the generators emit.
func CountryKey(tag string) string    { return tag }
func CountryAdjKey(tag string) string { return tag + "_ADJ" }
func ProvinceKey(id uint16) string    { return fmt.Sprintf("PROV%d", id) }
func TerrainKey(name string) string   { return "TERRAIN_" + name }
