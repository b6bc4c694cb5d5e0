package file

import (
	"os"
	"path/filepath"
	"testing"

	alarms "telemetry-alarms/internal/alarms/domain"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, rules, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if catalog.Len() != 10 {
		t.Fatalf("expected 10 devices, got %d", catalog.Len())
	}
	for _, profile := range catalog.Profiles() {
		if len(profile.Metrics) == 0 || profile.Site == "" {
			t.Fatalf("incomplete profile %+v", profile)
		}
		for deviceMetric := range rules[profile.ID] {
			if !catalog.Allows(profile.ID, deviceMetric) {
				t.Fatalf("rule for %s/%s is not an allowed metric", profile.ID, deviceMetric)
			}
		}
	}
}

func TestParseCatalog(t *testing.T) {
	doc := []byte(`
devices:
  - id: device-1
    site: Site A
    assignee: alice
    metrics:
      temperature: {operator: ">", value: 70}
      humidity:
  - id: device-2
    site: Site B
    allowed_metrics: [pressure, vibration]
    metrics:
      pressure: {operator: "≤", value: 2}
`)
	catalog, rules, err := Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !catalog.Allows("device-1", "humidity") || !catalog.Allows("device-2", "vibration") {
		t.Fatalf("expected allowed metrics")
	}
	if _, ok := rules.Lookup("device-1", "humidity"); ok {
		t.Fatalf("empty metric body must not create a rule")
	}
	rule, ok := rules.Lookup("device-2", "pressure")
	if !ok || rule.Operator != alarms.OperatorLessOrEqual || rule.Threshold != 2 {
		t.Fatalf("unexpected rule %+v", rule)
	}
	profile, _ := catalog.Get("device-1")
	if profile.Assignee != "alice" {
		t.Fatalf("unexpected assignee %q", profile.Assignee)
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":     `devices: []`,
		"no id":     "devices:\n  - site: x\n    allowed_metrics: [a]\n",
		"no metric": "devices:\n  - id: d\n",
		"duplicate": "devices:\n  - id: d\n    allowed_metrics: [a]\n  - id: d\n    allowed_metrics: [a]\n",
		"bad yaml":  "devices: [",
	}
	for name, doc := range cases {
		if _, _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("devices:\n  - id: d\n    allowed_metrics: [a]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	catalog, _, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !catalog.Allows("d", "a") {
		t.Fatalf("expected loaded catalog")
	}
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
