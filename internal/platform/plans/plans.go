package plans

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	Free     = "free"
	Pro      = "pro"
	Business = "business"
)

//go:embed plans.yaml
var catalogYAML []byte

type Limits struct {
	MaxBots             int `yaml:"max_bots" json:"max_bots"`
	MaxPagesPerBot      int `yaml:"max_pages_per_bot" json:"max_pages_per_bot"`
	MaxMessagesPerMonth int `yaml:"max_messages_per_month" json:"max_messages_per_month"`
}

type Plan struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	PriceEnv string `yaml:"price_env" json:"-"`
	PriceID  string `yaml:"-" json:"-"`
	Limits   Limits `yaml:"limits" json:"limits"`
}

// Catalog is the set of billable plans, keyed by id.
type Catalog struct {
	plans []Plan
	byID  map[string]Plan
}

// Load parses the embedded catalog and resolves Stripe price ids from env.
func Load() (*Catalog, error) {
	return parse(catalogYAML, os.Getenv)
}

func parse(raw []byte, getenv func(string) string) (*Catalog, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	c := &Catalog{byID: make(map[string]Plan, len(doc.Plans))}
	for _, p := range doc.Plans {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("parse plans: plan without id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("parse plans: duplicate plan %q", p.ID)
		}
		if p.PriceEnv != "" {
			p.PriceID = strings.TrimSpace(getenv(p.PriceEnv))
		}
		c.plans = append(c.plans, p)
		c.byID[p.ID] = p
	}
	if _, ok := c.byID[Free]; !ok {
		return nil, fmt.Errorf("parse plans: %q plan missing", Free)
	}
	return c, nil
}

// Get returns the plan, falling back to free for unknown ids.
func (c *Catalog) Get(id string) Plan {
	if p, ok := c.byID[strings.TrimSpace(id)]; ok {
		return p
	}
	return c.byID[Free]
}

func (c *Catalog) Lookup(id string) (Plan, bool) {
	p, ok := c.byID[strings.TrimSpace(id)]
	return p, ok
}

// ByPriceID maps a Stripe price back to its plan.
func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

func (c *Catalog) All() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
