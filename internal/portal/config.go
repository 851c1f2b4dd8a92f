package portal

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Jayes-h/fintech-process-automation-sub001/internal/sheet"
)

// Kind identifies a marketplace export layout.
type Kind string

const (
	AmazonB2C Kind = "amazon_b2c"
	AmazonB2B Kind = "amazon_b2b"
	Flipkart  Kind = "flipkart"
	Myntra    Kind = "myntra"
	Blinkit   Kind = "blinkit"
)

// Kinds lists every supported layout in a stable order.
func Kinds() []Kind {
	return []Kind{AmazonB2C, AmazonB2B, Flipkart, Myntra, Blinkit}
}

// ParseKind validates a caller supplied portal identifier. Amazon has no default
// sub-variant: the caller must say whether the file is B2C or B2B.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	if k == "amazon" {
		return "", errors.New("portal: amazon requires an explicit file type (amazon_b2c or amazon_b2b)")
	}
	return "", fmt.Errorf("portal: unknown portal %q", s)
}

// Field is a semantic column of a canonical record.
type Field string

const (
	FieldSKU             Field = "sku"
	FieldQuantity        Field = "quantity"
	FieldBaseAmount      Field = "base_amount"
	FieldIGST            Field = "igst"
	FieldCGST            Field = "cgst"
	FieldSGST            Field = "sgst"
	FieldUTGST           Field = "utgst"
	FieldTotalTax        Field = "total_tax"
	FieldInvoiceAmount   Field = "invoice_amount"
	FieldInvoiceNumber   Field = "invoice_number"
	FieldInvoiceDate     Field = "invoice_date"
	FieldState           Field = "state"
	FieldGSTIN           Field = "gstin"
	FieldTransactionType Field = "transaction_type"
)

// Config is the column-mapping table for one portal.
type Config struct {
	Kind  Kind   `yaml:"-"`
	Label string `yaml:"label"`
	// Fields maps a semantic field to acceptable header spellings, in priority order.
	Fields         map[Field][]string `yaml:"fields"`
	Required       []Field            `yaml:"required"`
	GroupByInvoice bool               `yaml:"group_by_invoice"`
	SplitTotalTax  bool               `yaml:"split_total_tax"`
	// DefaultQuantity applies only when the export has no quantity column at all.
	DefaultQuantity string   `yaml:"default_quantity"`
	SkipTypes       []string `yaml:"skip_types"`
	ReturnTypes     []string `yaml:"return_types"`
}

type configFile struct {
	Portals map[Kind]*Config `yaml:"portals"`
}

// Registry holds the configuration of every portal.
type Registry struct {
	configs map[Kind]Config
}

//go:embed portals.yaml
var defaultConfig []byte

// DefaultRegistry parses the embedded portal configuration.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultConfig)
}

// LoadRegistry reads the configuration at path, falling back to the embedded
// defaults when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("portal: read config: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a YAML portal configuration document.
func ParseRegistry(data []byte) (*Registry, error) {
	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("portal: decode config: %w", err)
	}
	if len(file.Portals) == 0 {
		return nil, errors.New("portal: config defines no portals")
	}
	reg := &Registry{configs: make(map[Kind]Config, len(file.Portals))}
	for kind, cfg := range file.Portals {
		if cfg == nil {
			continue
		}
		cfg.Kind = kind
		if err := cfg.normalize(); err != nil {
			return nil, err
		}
		reg.configs[kind] = *cfg
	}
	return reg, nil
}

// Config returns the configuration for kind.
func (r *Registry) Config(kind Kind) (Config, bool) {
	if r == nil {
		return Config{}, false
	}
	cfg, ok := r.configs[kind]
	return cfg, ok
}

// Kinds lists configured portals sorted by name.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.configs))
	for k := range r.configs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (c *Config) normalize() error {
	if len(c.Fields[FieldSKU]) == 0 {
		return fmt.Errorf("portal: %s: no aliases for %s", c.Kind, FieldSKU)
	}
	if len(c.Fields[FieldQuantity]) == 0 && c.DefaultQuantity == "" {
		return fmt.Errorf("portal: %s: no aliases for %s", c.Kind, FieldQuantity)
	}
	for field, aliases := range c.Fields {
		out := make([]string, 0, len(aliases))
		for _, a := range aliases {
			if n := sheet.NormalizeHeader(a); n != "" {
				out = append(out, n)
			}
		}
		c.Fields[field] = out
	}
	if len(c.Required) == 0 {
		c.Required = []Field{FieldSKU, FieldQuantity}
	}
	if c.DefaultQuantity != "" {
		if _, err := decimal.NewFromString(c.DefaultQuantity); err != nil {
			return fmt.Errorf("portal: %s: default_quantity: %w", c.Kind, err)
		}
	}
	c.SkipTypes = foldAll(c.SkipTypes)
	c.ReturnTypes = foldAll(c.ReturnTypes)
	if c.Label == "" {
		c.Label = string(c.Kind)
	}
	return nil
}

func foldAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := sheet.NormalizeHeader(v); n != "" {
			out = append(out, n)
		}
	}
	return out
}
