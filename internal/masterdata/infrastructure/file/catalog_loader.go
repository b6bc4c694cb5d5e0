package file

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	alarms "telemetry-alarms/internal/alarms/domain"
	masterdata "telemetry-alarms/internal/masterdata/domain"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

type document struct {
	Devices []deviceEntry `yaml:"devices"`
}

type deviceEntry struct {
	ID       string                `yaml:"id"`
	Site     string                `yaml:"site"`
	Assignee string                `yaml:"assignee"`
	Allowed  []string              `yaml:"allowed_metrics"`
	Metrics  map[string]*ruleEntry `yaml:"metrics"`
}

type ruleEntry struct {
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
}

// Default returns the built-in demo catalog and its initial rules.
func Default() (*masterdata.Catalog, alarms.RuleSet, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog document from path. An empty path loads the default catalog.
func Load(path string) (*masterdata.Catalog, alarms.RuleSet, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	catalog, rules, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return catalog, rules, nil
}

// Parse decodes a YAML catalog document.
// A metric listed with an empty body is allowed but has no initial rule.
func Parse(data []byte) (*masterdata.Catalog, alarms.RuleSet, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	if len(doc.Devices) == 0 {
		return nil, nil, errors.New("catalog: no devices")
	}

	profiles := make([]masterdata.DeviceProfile, 0, len(doc.Devices))
	rules := make(alarms.RuleSet)
	for _, entry := range doc.Devices {
		allowed := entry.Allowed
		if len(allowed) == 0 {
			for metric := range entry.Metrics {
				allowed = append(allowed, metric)
			}
			sort.Strings(allowed)
		}
		profiles = append(profiles, masterdata.DeviceProfile{
			ID:       entry.ID,
			Site:     entry.Site,
			Metrics:  allowed,
			Assignee: entry.Assignee,
		})
		for metric, rule := range entry.Metrics {
			if rule == nil {
				continue
			}
			if rules[entry.ID] == nil {
				rules[entry.ID] = make(map[string]alarms.Rule)
			}
			rules[entry.ID][metric] = alarms.Rule{
				Operator:  alarms.ParseOperator(rule.Operator),
				Threshold: rule.Value,
			}
		}
	}

	catalog, err := masterdata.NewCatalog(profiles)
	if err != nil {
		return nil, nil, err
	}
	return catalog, rules, nil
}
