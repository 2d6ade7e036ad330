package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"craft-flipping/pkg/logging"
)

// Good is a tradeable thing identified by a namespaced id such as "minecraft:diamond"
type Good struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Config controls id normalization and name-resolution caching
type Config struct {
	DefaultNamespace string
	ResolveCacheSize int
}

// DefaultConfig returns sensible defaults for the catalog
func DefaultConfig() *Config {
	return &Config{
		DefaultNamespace: "minecraft",
		ResolveCacheSize: 1024,
	}
}

// resolution is a cached FindByName outcome; misses are cached too
type resolution struct {
	good  Good
	found bool
}

// Catalog is the immutable set of known goods. Safe for concurrent use.
type Catalog struct {
	config *Config
	goods  map[string]Good
	sorted []Good
	names  *lru.Cache
	logger *logging.Logger
}

// goodNames implements fuzzy.Source over display names
type goodNames []Good

func (g goodNames) Len() int {
	return len(g)
}

func (g goodNames) String(i int) string {
	return strings.ToLower(g[i].Name)
}

// New builds a catalog from goods. Ids are normalized; later duplicates replace earlier ones.
func New(goods []Good, config *Config, logger *logging.Logger) *Catalog {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultNamespace == "" {
		config.DefaultNamespace = "minecraft"
	}
	if config.ResolveCacheSize <= 0 {
		config.ResolveCacheSize = 1024
	}

	c := &Catalog{
		config: config,
		goods:  make(map[string]Good, len(goods)),
		logger: logging.OrQuiet(logger),
	}

	for _, g := range goods {
		id := c.NormalizeID(g.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(g.Name)
		if name == "" {
			name = displayNameFromID(id)
		}
		c.goods[id] = Good{ID: id, Name: name}
	}

	c.sorted = make([]Good, 0, len(c.goods))
	for _, g := range c.goods {
		c.sorted = append(c.sorted, g)
	}
	sort.Slice(c.sorted, func(i, j int) bool {
		return c.sorted[i].ID < c.sorted[j].ID
	})

	// only errors on non-positive size
	c.names, _ = lru.New(config.ResolveCacheSize)

	return c
}

// catalogFile is the YAML layout read by LoadFile
type catalogFile struct {
	Namespace string `yaml:"namespace"`
	Goods     []Good `yaml:"goods"`
}

// LoadFile reads a YAML catalog. A namespace in the file wins over config.DefaultNamespace.
func LoadFile(path string, config *Config, logger *logging.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	if config == nil {
		config = DefaultConfig()
	}
	if file.Namespace != "" {
		cfg := *config
		cfg.DefaultNamespace = file.Namespace
		config = &cfg
	}

	c := New(file.Goods, config, logger)
	c.logger.WithComponent("catalog").WithFields(logrus.Fields{
		"path":  path,
		"goods": c.Len(),
	}).Info("Loaded good catalog")

	return c, nil
}

// Namespace returns the namespace applied to bare ids
func (c *Catalog) Namespace() string {
	return c.config.DefaultNamespace
}

// NormalizeID lowercases and trims id and adds the default namespace when none is present
func (c *Catalog) NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if !strings.Contains(id, ":") {
		return c.config.DefaultNamespace + ":" + id
	}
	return id
}

// Resolve looks a good up by id
func (c *Catalog) Resolve(id string) (Good, bool) {
	g, ok := c.goods[c.NormalizeID(id)]
	return g, ok
}

// Contains reports whether id names a known good
func (c *Catalog) Contains(id string) bool {
	_, ok := c.Resolve(id)
	return ok
}

// minStrictSubstring is the shortest query FindByNameStrict will match as a path substring
const minStrictSubstring = 3

// FindByName resolves a user supplied name. Tried in order: the name in registry
// form ("Iron Ingot" -> "minecraft:iron_ingot"), an exact display name, a substring
// of an id path, then a fuzzy match on display names.
func (c *Catalog) FindByName(query string) (Good, bool) {
	return c.lookupName(query, false)
}

// FindByNameStrict resolves a name seen in passive chat. It skips the fuzzy step and
// only matches id path substrings of at least three characters.
func (c *Catalog) FindByNameStrict(query string) (Good, bool) {
	return c.lookupName(query, true)
}

func (c *Catalog) lookupName(query string, strict bool) (Good, bool) {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return Good{}, false
	}

	cacheKey := key
	if strict {
		cacheKey = "strict\x00" + key
	}
	if cached, ok := c.names.Get(cacheKey); ok {
		r := cached.(resolution)
		return r.good, r.found
	}

	good, found := c.findByName(key, strict)
	c.names.Add(cacheKey, resolution{good: good, found: found})
	return good, found
}

func (c *Catalog) findByName(key string, strict bool) (Good, bool) {
	registryForm := strings.ReplaceAll(key, " ", "_")

	if g, ok := c.Resolve(registryForm); ok {
		return g, true
	}

	for _, g := range c.sorted {
		if strings.ToLower(g.Name) == key {
			return g, true
		}
	}

	if !strict || len(registryForm) >= minStrictSubstring {
		for _, g := range c.sorted {
			if strings.Contains(idPath(g.ID), registryForm) {
				return g, true
			}
		}
	}

	if strict {
		return Good{}, false
	}

	matches := fuzzy.FindFrom(key, goodNames(c.sorted))
	if len(matches) > 0 {
		g := c.sorted[matches[0].Index]
		c.logger.WithComponent("catalog").WithFields(logrus.Fields{
			"query": key,
			"match": g.ID,
			"score": matches[0].Score,
		}).Debug("Resolved name by fuzzy match")
		return g, true
	}

	return Good{}, false
}

// idPath strips the namespace: "minecraft:iron_ingot" -> "iron_ingot"
func idPath(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// All returns every good sorted by id
func (c *Catalog) All() []Good {
	out := make([]Good, len(c.sorted))
	copy(out, c.sorted)
	return out
}

// Len returns the number of goods
func (c *Catalog) Len() int {
	return len(c.sorted)
}

// displayNameFromID turns "minecraft:iron_ingot" into "Iron Ingot"
func displayNameFromID(id string) string {
	id = idPath(id)
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
