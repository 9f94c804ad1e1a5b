// Package catalog provides the read-only help-topic menu shown by the chat
// widget before any conversation exists. The catalog is loaded once at
// startup from a YAML file owned by the content-editing collaborator and is
// immutable afterwards, which makes it safe for concurrent use.
//
// Options come in exactly two variants:
//   - InfoOption: carries a Content body and is a side-effect-free display.
//   - EscalateOption: leads into live-conversation creation.
//
// The variant is part of the type, not a boolean inspected at each use site.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Meta holds the display fields shared by both option variants.
type Meta struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Emoji       string `json:"emoji,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	OrderIndex  int    `json:"order_index"`
}

// Content is the detailed body attached to an InfoOption.
type Content struct {
	Title          string   `json:"title"           yaml:"title"`
	Body           string   `json:"body"            yaml:"body"`
	BulletPoints   []string `json:"bullet_points,omitempty" yaml:"bullet_points"`
	AdditionalInfo string   `json:"additional_info,omitempty" yaml:"additional_info"`
}

// Option is the sealed interface over the two menu variants.
type Option interface {
	Meta() Meta
	sealed()
}

// InfoOption is a static help entry; selecting it displays Content.
type InfoOption struct {
	M       Meta
	Content Content
}

// Meta returns the option's display fields.
func (o InfoOption) Meta() Meta { return o.M }
func (InfoOption) sealed()      {}

// EscalateOption leads into guest-info collection and conversation creation.
type EscalateOption struct {
	M Meta
}

// Meta returns the option's display fields.
func (o EscalateOption) Meta() Meta { return o.M }
func (EscalateOption) sealed()      {}

// Category is an ordered group of options under a display name.
type Category struct {
	Name    string
	Options []Option
}

// Catalog is the immutable, loaded topic menu.
type Catalog struct {
	categories []Category
	bySlug     map[string]Option
	searchDocs []searchDoc
}

// Categories returns categories in file order, each with its options sorted
// by OrderIndex (ties keep file order).
func (c *Catalog) Categories() []Category { return c.categories }

// Option returns the option registered under slug.
func (c *Catalog) Option(slug string) (Option, bool) {
	o, ok := c.bySlug[slug]
	return o, ok
}

// Content returns the detailed body for an info option. The second return is
// false for unknown slugs and for escalate options, which have no content.
func (c *Catalog) Content(slug string) (Content, bool) {
	o, ok := c.bySlug[slug]
	if !ok {
		return Content{}, false
	}
	info, ok := o.(InfoOption)
	if !ok {
		return Content{}, false
	}
	return info.Content, true
}

// Len returns the total number of options across all categories.
func (c *Catalog) Len() int { return len(c.bySlug) }

// --- YAML wire shapes ---

type fileCatalog struct {
	Categories []fileCategory `yaml:"categories"`
}

type fileCategory struct {
	Name    string       `yaml:"name"`
	Options []fileOption `yaml:"options"`
}

type fileOption struct {
	Slug        string   `yaml:"slug"`
	Title       string   `yaml:"title"`
	Emoji       string   `yaml:"emoji"`
	Description string   `yaml:"description"`
	OrderIndex  int      `yaml:"order_index"`
	AdminChat   bool     `yaml:"admin_chat"`
	Content     *Content `yaml:"content"`
}

// Load reads and validates the topic catalog at path.
//
// Validation rules:
//   - every option needs a non-empty slug and title; slugs are global-unique
//   - an admin-chat option must not carry content
//   - an info option must carry content (it is what selecting it displays)
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic catalog: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Catalog from raw YAML bytes. See Load for the rules.
func Parse(raw []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse topic catalog: %w", err)
	}
	if len(fc.Categories) == 0 {
		return nil, fmt.Errorf("topic catalog has no categories")
	}

	caser := cases.Title(language.English)
	cat := &Catalog{bySlug: make(map[string]Option)}

	for _, fcat := range fc.Categories {
		name := strings.TrimSpace(fcat.Name)
		if name == "" {
			return nil, fmt.Errorf("topic catalog: category with empty name")
		}
		if name == strings.ToLower(name) {
			// Editors often write category keys in lowercase; present them cased.
			name = caser.String(name)
		}

		opts := make([]Option, 0, len(fcat.Options))
		for _, fo := range fcat.Options {
			slug := strings.TrimSpace(fo.Slug)
			title := strings.TrimSpace(fo.Title)
			if slug == "" || title == "" {
				return nil, fmt.Errorf("topic catalog: option in %q missing slug or title", name)
			}
			if _, dup := cat.bySlug[slug]; dup {
				return nil, fmt.Errorf("topic catalog: duplicate slug %q", slug)
			}
			m := Meta{
				Slug:        slug,
				Title:       title,
				Emoji:       fo.Emoji,
				Description: strings.TrimSpace(fo.Description),
				Category:    name,
				OrderIndex:  fo.OrderIndex,
			}
			var opt Option
			if fo.AdminChat {
				if fo.Content != nil {
					return nil, fmt.Errorf("topic catalog: escalate option %q must not carry content", slug)
				}
				opt = EscalateOption{M: m}
			} else {
				if fo.Content == nil {
					return nil, fmt.Errorf("topic catalog: info option %q has no content", slug)
				}
				opt = InfoOption{M: m, Content: *fo.Content}
			}
			cat.bySlug[slug] = opt
			opts = append(opts, opt)
		}

		sort.SliceStable(opts, func(i, j int) bool {
			return opts[i].Meta().OrderIndex < opts[j].Meta().OrderIndex
		})
		cat.categories = append(cat.categories, Category{Name: name, Options: opts})
	}

	cat.buildSearchDocs()
	return cat, nil
}
