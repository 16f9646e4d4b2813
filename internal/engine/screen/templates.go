package screen

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder for image.Decode
	_ "image/png"  // Register PNG decoder for image.Decode
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrTemplateNotFound is returned by Get for names that were never loaded.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a reference image of a UI control.
type Template struct {
	Name   string
	Pixels *image.RGBA
}

// Width of the template in pixels
func (t Template) Width() int { return t.Pixels.Bounds().Dx() }

// Height of the template in pixels
func (t Template) Height() int { return t.Pixels.Bounds().Dy() }

// NewTemplate builds a template from an in-memory image.
func NewTemplate(name string, img image.Image) (Template, error) {
	if img == nil || img.Bounds().Empty() {
		return Template{}, fmt.Errorf("template %q has no pixels", name)
	}
	return Template{Name: name, Pixels: toRGBA(img)}, nil
}

// TemplateStore holds the named templates. It is only written during startup.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateStore creates an empty store
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[string]Template)}
}

// LoadImage loads an image from the filesystem
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// Load reads the image at path and registers it under name.
func (s *TemplateStore) Load(name, path string) (Template, error) {
	img, err := LoadImage(path)
	if err != nil {
		return Template{}, fmt.Errorf("load template %q from %s: %w", name, path, err)
	}
	return s.Add(name, img)
}

// Add registers an in-memory image under name.
func (s *TemplateStore) Add(name string, img image.Image) (Template, error) {
	t, err := NewTemplate(name, img)
	if err != nil {
		return Template{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[name]; exists {
		return Template{}, fmt.Errorf("template %q already loaded", name)
	}
	s.templates[name] = t
	return t, nil
}

// LoadDir loads every name -> file entry, resolving files relative to dir.
func (s *TemplateStore) LoadDir(dir string, files map[string]string) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := s.Load(name, filepath.Join(dir, files[name])); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the template registered under name.
func (s *TemplateStore) Get(name string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Names lists the loaded template names in sorted order.
func (s *TemplateStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
