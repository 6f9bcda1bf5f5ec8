package factsync

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed universe.yaml
var defaultUniverseYAML []byte

// Company is one tracked registrant
type Company struct {
	Ticker string `yaml:"ticker"`
	CIK    string `yaml:"cik"`
}

// Universe is the set of companies a run retrieves
type Universe struct {
	Companies []Company `yaml:"companies"`
}

// DefaultUniverse returns the embedded company list
func DefaultUniverse() Universe {
	u, err := ParseUniverse(defaultUniverseYAML)
	if err != nil {
		panic("embedded universe.yaml: " + err.Error())
	}
	return u
}

// LoadUniverse reads a universe file; an empty path yields DefaultUniverse
func LoadUniverse(path string) (Universe, error) {
	if path == "" {
		return DefaultUniverse(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Universe{}, eris.Wrapf(err, "read universe %s", path)
	}
	return ParseUniverse(data)
}

// ParseUniverse parses YAML, normalizing tickers to upper case and CIKs to ten
// digits. Duplicate tickers and entries without a CIK are rejected.
func ParseUniverse(data []byte) (Universe, error) {
	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return Universe{}, eris.Wrap(err, "parse universe yaml")
	}
	seen := make(map[string]bool, len(u.Companies))
	for i := range u.Companies {
		c := &u.Companies[i]
		c.Ticker = strings.ToUpper(CleanText(c.Ticker))
		c.CIK = NormalizeCIK(c.CIK)
		if c.Ticker == "" {
			return Universe{}, eris.Errorf("universe entry %d has no ticker", i+1)
		}
		if c.CIK == "" {
			return Universe{}, eris.Errorf("universe entry %s has no cik", c.Ticker)
		}
		if seen[c.Ticker] {
			return Universe{}, eris.Errorf("universe lists %s twice", c.Ticker)
		}
		seen[c.Ticker] = true
	}
	return u, nil
}

// Filter returns the companies whose tickers are listed; no tickers keeps all
func (u Universe) Filter(tickers ...string) Universe {
	if len(tickers) == 0 {
		return u
	}
	want := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		want[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	var out Universe
	for _, c := range u.Companies {
		if want[c.Ticker] {
			out.Companies = append(out.Companies, c)
		}
	}
	return out
}
