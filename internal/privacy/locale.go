package privacy

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Locale holds the fake-data tables for one locale.
type Locale struct {
	Name          string   `yaml:"name"`
	DateOrder     string   `yaml:"date_order"` // MDY or DMY
	AddressFormat string   `yaml:"address_format"`
	FirstNames    []string `yaml:"first_names"`
	LastNames     []string `yaml:"last_names"`
	Streets       []string `yaml:"streets"`
	Cities        []string `yaml:"cities"`
}

var (
	localesOnce sync.Once
	locales     map[string]*Locale
	localesErr  error
)

func loadLocales() (map[string]*Locale, error) {
	localesOnce.Do(func() {
		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			localesErr = err
			return
		}
		locales = make(map[string]*Locale, len(entries))
		for _, entry := range entries {
			data, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
			if err != nil {
				localesErr = err
				return
			}
			var loc Locale
			if err := yaml.Unmarshal(data, &loc); err != nil {
				localesErr = fmt.Errorf("parse locale %s: %w", entry.Name(), err)
				return
			}
			if err := loc.validate(); err != nil {
				localesErr = fmt.Errorf("locale %s: %w", entry.Name(), err)
				return
			}
			locales[loc.Name] = &loc
		}
	})
	return locales, localesErr
}

func (l *Locale) validate() error {
	switch {
	case l.Name == "":
		return errors.New("missing name")
	case l.DateOrder != "MDY" && l.DateOrder != "DMY":
		return fmt.Errorf("invalid date_order %q", l.DateOrder)
	case len(l.FirstNames) == 0 || len(l.LastNames) == 0:
		return errors.New("name tables are empty")
	case len(l.Streets) == 0 || len(l.Cities) == 0:
		return errors.New("address tables are empty")
	case !strings.Contains(l.AddressFormat, "{street}"):
		return errors.New("address_format must contain {street}")
	}
	return nil
}

// LoadLocale returns the tables for name, or a ConfigurationError when the
// locale is not bundled.
func LoadLocale(name string) (*Locale, error) {
	all, err := loadLocales()
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	loc, ok := all[name]
	if !ok {
		return nil, &ConfigurationError{
			Field: "locale",
			Value: name,
			Err:   fmt.Errorf("supported locales: %s", strings.Join(SupportedLocales(), ", ")),
		}
	}
	return loc, nil
}

// SupportedLocales lists the bundled locale names.
func SupportedLocales() []string {
	all, _ := loadLocales()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
