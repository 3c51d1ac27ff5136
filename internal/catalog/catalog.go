package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/money"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrUnknownPackage = errors.New("unknown package")
	ErrUnknownFeature = errors.New("unknown feature")
)

type fileCatalog struct {
	Currency string `yaml:"currency"`
	Packages []struct {
		models.Package `yaml:",inline"`
		Price          string `yaml:"price"`
	} `yaml:"packages"`
	Features []struct {
		models.Feature `yaml:",inline"`
		Price          string `yaml:"price"`
	} `yaml:"features"`
	Countries []string `yaml:"countries"`
}

// Catalog is the immutable set of packages, features and client countries offered by the storefront
type Catalog struct {
	currency  string
	packages  map[string]models.Package
	features  map[string]models.Feature
	order     []string
	forder    []string
	countries []string
}

// Load reads the catalog from path, or the built-in default when path is empty
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a catalog from YAML
func Parse(data []byte) (*Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	currency := money.NormalizeCurrency(raw.Currency)
	if currency == "" {
		return nil, errors.New("catalog currency is required")
	}

	c := &Catalog{
		currency: currency,
		packages: make(map[string]models.Package, len(raw.Packages)),
		features: make(map[string]models.Feature, len(raw.Features)),
	}

	for _, p := range raw.Packages {
		if p.ID == "" {
			return nil, errors.New("catalog package without id")
		}
		if _, dup := c.packages[p.ID]; dup {
			return nil, fmt.Errorf("duplicate package %q", p.ID)
		}
		price, err := money.FromMajor(p.Price, currency)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", p.ID, err)
		}
		pkg := p.Package
		pkg.UnitPrice = price
		c.packages[pkg.ID] = pkg
		c.order = append(c.order, pkg.ID)
	}

	for _, f := range raw.Features {
		if f.ID == "" {
			return nil, errors.New("catalog feature without id")
		}
		if _, dup := c.features[f.ID]; dup {
			return nil, fmt.Errorf("duplicate feature %q", f.ID)
		}
		price, err := money.FromMajor(f.Price, currency)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", f.ID, err)
		}
		feat := f.Feature
		feat.Price = price
		c.features[feat.ID] = feat
		c.forder = append(c.forder, feat.ID)
	}

	for _, cc := range raw.Countries {
		c.countries = append(c.countries, strings.ToUpper(strings.TrimSpace(cc)))
	}
	sort.Strings(c.countries)

	if len(c.packages) == 0 {
		return nil, errors.New("catalog has no packages")
	}
	return c, nil
}

// Currency returns the operating currency
func (c *Catalog) Currency() string {
	return c.currency
}

// Package looks up a package by id
func (c *Catalog) Package(id string) (models.Package, error) {
	p, ok := c.packages[id]
	if !ok {
		return models.Package{}, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	return p, nil
}

// Features resolves a set of feature ids. Duplicate ids are counted once.
func (c *Catalog) Features(ids []string) ([]models.Feature, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]models.Feature, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		f, ok := c.features[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, id)
		}
		out = append(out, f)
	}
	return out, nil
}

// Packages lists packages in file order
func (c *Catalog) Packages() []models.Package {
	out := make([]models.Package, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.packages[id])
	}
	return out
}

// AllFeatures lists features in file order
func (c *Catalog) AllFeatures() []models.Feature {
	out := make([]models.Feature, 0, len(c.forder))
	for _, id := range c.forder {
		out = append(out, c.features[id])
	}
	return out
}

// Countries lists the client countries accepted at checkout
func (c *Catalog) Countries() []string {
	return append([]string(nil), c.countries...)
}

// AllowsCountry reports whether a client country is accepted. An empty country list accepts all.
func (c *Catalog) AllowsCountry(country string) bool {
	if len(c.countries) == 0 {
		return true
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	i := sort.SearchStrings(c.countries, country)
	return i < len(c.countries) && c.countries[i] == country
}
