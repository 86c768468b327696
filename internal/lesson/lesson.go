// Package lesson reads lesson files for the player.
package lesson

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/civichero/civichero/tts"
	"github.com/civichero/civichero/tts/sentence"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedLanguage is returned for front matter naming a language
// lessons cannot be read in.
var ErrUnsupportedLanguage = errors.New("unsupported lesson language")

// Lesson is a lesson ready to be read aloud.
type Lesson struct {
	Title    string
	Language tts.Language
	// Source is the lesson body as written, without front matter.
	Source []byte
	// Text is what gets spoken.
	Text     string
	Markdown bool
}

type frontMatter struct {
	Title    string `yaml:"title"`
	Language string `yaml:"language"`
}

// only YAML front matter; a lesson opening with "+++" or "{" is just text
var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// Parse reads a lesson. Markdown files (by extension, or any file with
// front matter) are reduced to speakable text. An optional YAML front
// matter block may set the title and language.
func Parse(name string, source []byte) (Lesson, error) {
	source = bytes.TrimPrefix(source, []byte("\ufeff"))

	var meta frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(source), &meta, yamlFormat)
	if err != nil {
		return Lesson{}, fmt.Errorf("%s: invalid front matter: %w", name, err)
	}
	hasMeta := len(body) != len(source)

	l := Lesson{
		Title:    strings.TrimSpace(meta.Title),
		Language: tts.Language(strings.ToLower(strings.TrimSpace(meta.Language))),
		Source:   body,
		Markdown: hasMeta || IsMarkdownFile(name),
	}
	if l.Language != "" && !l.Language.Valid() {
		return Lesson{}, fmt.Errorf("%s: %w %q (want en or sw)", name, ErrUnsupportedLanguage, meta.Language)
	}
	if l.Title == "" && name != "" && name != "-" {
		l.Title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	if l.Markdown {
		l.Text = sentence.PlainText(body)
	} else {
		l.Text = strings.Join(strings.Fields(string(body)), " ")
	}
	return l, nil
}

// IsMarkdownFile reports whether name has a markdown extension.
func IsMarkdownFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdown", ".mkd":
		return true
	default:
		return false
	}
}
