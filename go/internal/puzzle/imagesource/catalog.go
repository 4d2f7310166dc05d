package imagesource

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Puzzle is one catalog entry
type Puzzle struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	ImageURL string `yaml:"image_url" json:"imageUrl"`
	// Width and Height skip the image fetch when both are set
	Width   int  `yaml:"width,omitempty" json:"width,omitempty"`
	Height  int  `yaml:"height,omitempty" json:"height,omitempty"`
	Premium bool `yaml:"premium,omitempty" json:"premium,omitempty"`
}

// Catalog is the set of playable puzzles
type Catalog struct {
	Puzzles []Puzzle `yaml:"puzzles"`

	byID map[string]Puzzle
}

// LoadCatalog reads a YAML catalog file
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}

// ParseCatalog decodes a YAML catalog and indexes it by id
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c.byID = make(map[string]Puzzle, len(c.Puzzles))
	for i, p := range c.Puzzles {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if p.ImageURL == "" && (p.Width <= 0 || p.Height <= 0) {
			return nil, fmt.Errorf("catalog entry %q needs an image_url or explicit dimensions", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", p.ID)
		}
		c.byID[p.ID] = p
	}
	return &c, nil
}

// Lookup returns the entry for a puzzle id
func (c *Catalog) Lookup(id string) (Puzzle, bool) {
	p, ok := c.byID[id]
	return p, ok
}
