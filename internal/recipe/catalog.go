package recipe

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

//go:embed recipes/*.yaml
var builtin embed.FS

// DefaultName is used when a provisioning request names no recipe.
const DefaultName = "base"

// Catalog is a read-only set of recipes keyed by name.
type Catalog struct {
	recipes map[string]*Recipe
}

// LoadCatalog loads the built-in recipes and then any *.yaml or *.yml in dir,
// which replace built-ins of the same name. An empty dir loads built-ins only.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{recipes: make(map[string]*Recipe)}
	if err := c.addFS(builtin, "recipes"); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := c.addFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) addFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("read recipes: %w", err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, e.Name())))
		if err != nil {
			return fmt.Errorf("read recipe %s: %w", e.Name(), err)
		}
		r, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		c.recipes[strings.ToLower(r.Name)] = r
	}
	return nil
}

// Get looks a recipe up by case-insensitive name.
func (c *Catalog) Get(name string) (*Recipe, bool) {
	r, ok := c.recipes[strings.ToLower(name)]
	return r, ok
}

// Names lists the available recipes, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.recipes))
	for n := range c.recipes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
