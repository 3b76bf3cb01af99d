package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the YAML layout of a catalog file.
type Document struct {
	BaseURL     string          `yaml:"base_url"`
	Translators []TranslatorDoc `yaml:"translators"`
}

// TranslatorDoc groups the titles of one translator.
type TranslatorDoc struct {
	Name   string     `yaml:"name"`
	Role   string     `yaml:"role"`
	Titles []TitleDoc `yaml:"titles"`
}

// TitleDoc describes one tracked novel.
type TitleDoc struct {
	Title   string   `yaml:"title"`
	Aliases []string `yaml:"aliases,omitempty"`
	URL     string   `yaml:"url,omitempty"`
	Cover   string   `yaml:"cover,omitempty"`
	Adult   bool     `yaml:"adult,omitempty"`
}

// Build converts the document into a Catalog.
func (d Document) Build() (*Catalog, error) {
	var novels []Novel
	roles := map[string]string{}
	for _, tr := range d.Translators {
		if tr.Role != "" {
			roles[tr.Name] = tr.Role
		}
		for _, t := range tr.Titles {
			novels = append(novels, Novel{
				Title:      t.Title,
				Translator: tr.Name,
				Aliases:    t.Aliases,
				SourceURL:  t.URL,
				CoverImage: t.Cover,
				Adult:      t.Adult,
			})
		}
	}
	return New(d.BaseURL, novels, roles)
}

// Decode parses a YAML catalog from r.
func Decode(r io.Reader) (*Catalog, error) {
	doc, err := decodeDocument(r)
	if err != nil {
		return nil, err
	}
	return doc.Build()
}

func decodeDocument(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return Document{}, fmt.Errorf("decode catalog: %w", err)
	}
	return doc, nil
}

// FileSource loads the catalog from a YAML file.
type FileSource struct {
	Path string
	// BaseURL applies when the file does not set base_url.
	BaseURL string
}

// NewFileSource returns a Source reading path.
func NewFileSource(path, baseURL string) *FileSource {
	return &FileSource{Path: path, BaseURL: baseURL}
}

// Load reads and parses the catalog file.
func (s *FileSource) Load(_ context.Context) (*Catalog, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer func() { _ = f.Close() }()
	doc, err := decodeDocument(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", s.Path, err)
	}
	if doc.BaseURL == "" {
		doc.BaseURL = s.BaseURL
	}
	c, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", s.Path, err)
	}
	return c, nil
}

// StaticSource serves an already-built catalog.
type StaticSource struct {
	Catalog *Catalog
}

// Load returns the wrapped catalog.
func (s StaticSource) Load(_ context.Context) (*Catalog, error) {
	if s.Catalog == nil {
		return nil, fmt.Errorf("static catalog is nil")
	}
	return s.Catalog, nil
}
