// Package catalog holds the static, versioned table of purchasable listing packages.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	SegmentSale = "sale"
	SegmentRent = "rent"
	SegmentTest = "test"

	TierBasis   = "basis"
	TierPremium = "premium"
	TierTop     = "top"

	MinRuntimeMonths = 1
	MaxRuntimeMonths = 3
)

var ErrPackageNotFound = errors.New("package not found")

var tierRank = map[string]int{TierBasis: 0, TierPremium: 1, TierTop: 2}

//go:embed packages.yaml
var defaultTable []byte

// Package is one immutable catalog entry.
type Package struct {
	Code          string `yaml:"code" json:"code"`
	Segment       string `yaml:"segment" json:"segment"`
	Tier          string `yaml:"tier" json:"tier"`
	RuntimeMonths int    `yaml:"runtime_months" json:"runtimeMonths"`
	PriceCents    int64  `yaml:"price_cents" json:"priceCents"`
	Currency      string `yaml:"currency" json:"currency"`
}

type table struct {
	Version  string    `yaml:"version"`
	Currency string    `yaml:"currency"`
	Packages []Package `yaml:"packages"`
}

// ICatalog is the read-only package lookup.
type ICatalog interface {
	Lookup(code string) (Package, error)
	ListBySegment(segment string) []Package
	Resolve(segment, tier string, runtimeMonths int) (Package, error)
	Version() string
}

type catalog struct {
	version   string
	byCode    map[string]Package
	bySegment map[string][]Package
}

// Default returns the catalog compiled into the binary.
func Default() (ICatalog, error) {
	return Parse(defaultTable)
}

// Load reads the catalog from path, or returns the built-in one when path is empty.
func Load(path string) (ICatalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from its YAML form and rejects inconsistent tables.
func Parse(data []byte) (ICatalog, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if t.Version == "" {
		return nil, fmt.Errorf("catalog has no version")
	}

	c := &catalog{
		version:   t.Version,
		byCode:    make(map[string]Package, len(t.Packages)),
		bySegment: make(map[string][]Package),
	}
	for _, p := range t.Packages {
		if p.Currency == "" {
			p.Currency = t.Currency
		}
		if err := validatePackage(p); err != nil {
			return nil, err
		}
		if _, dup := c.byCode[p.Code]; dup {
			return nil, fmt.Errorf("duplicate package code %s", p.Code)
		}
		c.byCode[p.Code] = p
		c.bySegment[p.Segment] = append(c.bySegment[p.Segment], p)
	}
	for seg := range c.bySegment {
		pkgs := c.bySegment[seg]
		sort.Slice(pkgs, func(i, j int) bool {
			if tierRank[pkgs[i].Tier] != tierRank[pkgs[j].Tier] {
				return tierRank[pkgs[i].Tier] < tierRank[pkgs[j].Tier]
			}
			return pkgs[i].RuntimeMonths < pkgs[j].RuntimeMonths
		})
	}
	return c, nil
}

func validatePackage(p Package) error {
	if p.Code == "" {
		return fmt.Errorf("package without code")
	}
	switch p.Segment {
	case SegmentSale, SegmentRent, SegmentTest:
	default:
		return fmt.Errorf("package %s: unknown segment %q", p.Code, p.Segment)
	}
	if _, ok := tierRank[p.Tier]; !ok {
		return fmt.Errorf("package %s: unknown tier %q", p.Code, p.Tier)
	}
	if p.RuntimeMonths < MinRuntimeMonths || p.RuntimeMonths > MaxRuntimeMonths {
		return fmt.Errorf("package %s: runtime %d out of range", p.Code, p.RuntimeMonths)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("package %s: negative price", p.Code)
	}
	if p.Currency == "" {
		return fmt.Errorf("package %s: no currency", p.Code)
	}
	return nil
}

func (c *catalog) Lookup(code string) (Package, error) {
	p, ok := c.byCode[code]
	if !ok {
		return Package{}, fmt.Errorf("%w: %s", ErrPackageNotFound, code)
	}
	return p, nil
}

// ListBySegment returns the packages of a segment ordered by tier, then runtime.
func (c *catalog) ListBySegment(segment string) []Package {
	pkgs := c.bySegment[segment]
	out := make([]Package, len(pkgs))
	copy(out, pkgs)
	return out
}

func (c *catalog) Resolve(segment, tier string, runtimeMonths int) (Package, error) {
	for _, p := range c.bySegment[segment] {
		if p.Tier == tier && p.RuntimeMonths == runtimeMonths {
			return p, nil
		}
	}
	return Package{}, fmt.Errorf("%w: %s/%s/%d", ErrPackageNotFound, segment, tier, runtimeMonths)
}

func (c *catalog) Version() string {
	return c.version
}
