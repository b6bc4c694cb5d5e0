package masterdata

import (
	"errors"
	"fmt"
	"sort"
)

// DeviceProfile describes a telemetry device known to the platform.
type DeviceProfile struct {
	ID       string   `json:"id"`
	Site     string   `json:"site"`
	Metrics  []string `json:"metrics"`
	Assignee string   `json:"assignee"`
}

// Validate checks device profile invariants.
func (d DeviceProfile) Validate() error {
	if d.ID == "" {
		return errors.New("device profile: empty id")
	}
	if len(d.Metrics) == 0 {
		return fmt.Errorf("device profile %s: no allowed metrics", d.ID)
	}
	for _, metric := range d.Metrics {
		if metric == "" {
			return fmt.Errorf("device profile %s: empty metric name", d.ID)
		}
	}
	return nil
}

// Allows reports whether the device may emit metric.
func (d DeviceProfile) Allows(metric string) bool {
	if metric == "" {
		return false
	}
	for _, m := range d.Metrics {
		if m == metric {
			return true
		}
	}
	return false
}

func (d DeviceProfile) clone() DeviceProfile {
	d.Metrics = append([]string(nil), d.Metrics...)
	return d
}

// Catalog is the immutable set of device profiles.
type Catalog struct {
	profiles map[string]DeviceProfile
	ids      []string
}

// NewCatalog validates profiles and builds a catalog.
func NewCatalog(profiles []DeviceProfile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]DeviceProfile, len(profiles))}
	for _, profile := range profiles {
		if err := profile.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.profiles[profile.ID]; exists {
			return nil, fmt.Errorf("device profile %s: duplicate id", profile.ID)
		}
		c.profiles[profile.ID] = profile.clone()
		c.ids = append(c.ids, profile.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

// Get returns the profile for a device id.
func (c *Catalog) Get(deviceID string) (DeviceProfile, bool) {
	if c == nil {
		return DeviceProfile{}, false
	}
	profile, ok := c.profiles[deviceID]
	if !ok {
		return DeviceProfile{}, false
	}
	return profile.clone(), true
}

// Allows reports whether deviceID is known and may emit metric.
func (c *Catalog) Allows(deviceID, metric string) bool {
	if c == nil || deviceID == "" {
		return false
	}
	profile, ok := c.profiles[deviceID]
	return ok && profile.Allows(metric)
}

// Profiles returns all profiles ordered by id.
func (c *Catalog) Profiles() []DeviceProfile {
	if c == nil {
		return nil
	}
	out := make([]DeviceProfile, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.profiles[id].clone())
	}
	return out
}

// Len returns the number of devices.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}
