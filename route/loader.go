package route

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/falai-dev/falai-go/schema"
	"github.com/falai-dev/falai-go/tool"
)

// Config is the declarative (YAML) form of a route. Steps reference skip
// predicates, hooks and tools by name; the loader resolves them against the
// registries supplied in LoaderOptions.
type Config struct {
	ID             string         `mapstructure:"id"`
	Title          string         `mapstructure:"title"`
	Conditions     []string       `mapstructure:"conditions"`
	RequiredFields []string       `mapstructure:"required_fields"`
	OptionalFields []string       `mapstructure:"optional_fields"`
	Guidelines     []string       `mapstructure:"guidelines"`
	Tools          []string       `mapstructure:"tools"`
	OnComplete     string         `mapstructure:"on_complete"`
	DataSchema     *schema.Schema `mapstructure:"data_schema"`
	Steps          []StepConfig   `mapstructure:"steps"`
}

// StepConfig is the declarative form of one step.
type StepConfig struct {
	Description string         `mapstructure:"description"`
	Prompt      string         `mapstructure:"prompt"`
	Collect     []string       `mapstructure:"collect"`
	Requires    []string       `mapstructure:"requires"`
	Tools       []string       `mapstructure:"tools"`
	SkipIf      string         `mapstructure:"skip_if"`
	Prepare     string         `mapstructure:"prepare"`
	Finalize    string         `mapstructure:"finalize"`
	Branches    []BranchConfig `mapstructure:"branches"`
	End         bool           `mapstructure:"end"`
}

// BranchConfig names one sibling chain in the declarative form.
type BranchConfig struct {
	Name  string       `mapstructure:"name"`
	Steps []StepConfig `mapstructure:"steps"`
}

// LoaderOptions supplies the named code attachments declarative routes can
// reference.
type LoaderOptions struct {
	SkipPredicates map[string]SkipFunc
	Hooks          map[string]*Hook
}

// Load parses YAML route definitions into built routes. The document may be
// a single route mapping or a list of them.
func Load(data []byte, opts LoaderOptions) ([]*Route, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse route config: %w", err)
	}

	var docs []any
	switch v := raw.(type) {
	case []any:
		docs = v
	default:
		docs = []any{raw}
	}

	routes := make([]*Route, 0, len(docs))
	for _, doc := range docs {
		var cfg Config
		if err := mapstructure.Decode(doc, &cfg); err != nil {
			return nil, fmt.Errorf("decode route config: %w", err)
		}
		r, err := buildFromConfig(cfg, opts)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// LoadFile reads and parses a YAML route definition file.
func LoadFile(path string, opts LoaderOptions) ([]*Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route config: %w", err)
	}
	return Load(data, opts)
}

func buildFromConfig(cfg Config, opts LoaderOptions) (*Route, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("route config requires an id")
	}
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("route %s declares no steps", cfg.ID)
	}

	b := NewBuilder(cfg.ID, cfg.Title).
		WithConditions(cfg.Conditions...).
		WithRequiredFields(cfg.RequiredFields...).
		WithOptionalFields(cfg.OptionalFields...).
		WithGuidelines(cfg.Guidelines...)
	for _, id := range cfg.Tools {
		b.WithTools(tool.ByID(id))
	}
	if cfg.OnComplete != "" {
		b.OnComplete(cfg.OnComplete)
	}
	if cfg.DataSchema != nil {
		b.WithDataSchema(cfg.DataSchema)
	}

	first, err := stepSpec(cfg.ID, cfg.Steps[0], opts)
	if err != nil {
		return nil, err
	}
	h := b.InitialStep(first)
	if err := chain(cfg.ID, h, cfg.Steps[0].Branches, cfg.Steps[1:], opts); err != nil {
		return nil, err
	}
	return b.Build()
}

// chain extends the graph from h with the remaining step configs, recursing
// into branches.
func chain(routeID string, h StepHandle, branches []BranchConfig, rest []StepConfig, opts LoaderOptions) error {
	if len(branches) > 0 {
		entries := make([]BranchEntry, 0, len(branches))
		for _, bc := range branches {
			if len(bc.Steps) == 0 {
				return fmt.Errorf("route %s: branch %q declares no steps", routeID, bc.Name)
			}
			spec, err := stepSpec(routeID, bc.Steps[0], opts)
			if err != nil {
				return err
			}
			entries = append(entries, BranchEntry{Name: bc.Name, Spec: spec})
		}
		handles := h.Branch(entries)
		for _, bc := range branches {
			if err := chain(routeID, handles[bc.Name], bc.Steps[0].Branches, bc.Steps[1:], opts); err != nil {
				return err
			}
		}
		return nil
	}

	for i, sc := range rest {
		if sc.End {
			h.EndRoute()
			return nil
		}
		spec, err := stepSpec(routeID, sc, opts)
		if err != nil {
			return err
		}
		h = h.NextStep(spec)
		if len(sc.Branches) > 0 {
			return chain(routeID, h, sc.Branches, rest[i+1:], opts)
		}
	}
	return nil
}

func stepSpec(routeID string, sc StepConfig, opts LoaderOptions) (StepSpec, error) {
	spec := StepSpec{
		Description: sc.Description,
		Prompt:      sc.Prompt,
		Collect:     sc.Collect,
		Requires:    sc.Requires,
	}
	for _, id := range sc.Tools {
		spec.Tools = append(spec.Tools, tool.ByID(id))
	}
	if sc.SkipIf != "" {
		fn, ok := opts.SkipPredicates[sc.SkipIf]
		if !ok {
			return spec, fmt.Errorf("route %s: unknown skip predicate %q", routeID, sc.SkipIf)
		}
		spec.SkipIf = fn
	}
	spec.Prepare = namedHook(sc.Prepare, opts)
	spec.Finalize = namedHook(sc.Finalize, opts)
	return spec, nil
}

// namedHook resolves a hook reference: a name in the hook registry wins,
// otherwise the name is treated as a tool id.
func namedHook(name string, opts LoaderOptions) *Hook {
	if name == "" {
		return nil
	}
	if h, ok := opts.Hooks[name]; ok {
		return h
	}
	return NewToolHook(tool.ByID(name))
}
