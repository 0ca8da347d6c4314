package accounts

import (
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed default_chart.yaml
var defaultChart []byte

// Chart is a chart-of-accounts template loaded from YAML.
type Chart struct {
	Accounts []ChartAccount `yaml:"accounts"`
}

// ChartAccount is one template row. Parents must precede their children.
type ChartAccount struct {
	Code          string        `yaml:"code"`
	Name          string        `yaml:"name"`
	Type          AccountType   `yaml:"type"`
	NormalBalance NormalBalance `yaml:"normal_balance"`
	Parent        string        `yaml:"parent"`
}

// DefaultChart returns the built-in chart used for new tenants.
func DefaultChart() (Chart, error) {
	return parseChart(defaultChart)
}

// LoadChart decodes a chart template.
func LoadChart(r io.Reader) (Chart, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Chart{}, err
	}
	return parseChart(data)
}

func parseChart(data []byte) (Chart, error) {
	var chart Chart
	if err := yaml.Unmarshal(data, &chart); err != nil {
		return Chart{}, fmt.Errorf("accounts: decode chart: %w", err)
	}
	seen := make(map[string]struct{}, len(chart.Accounts))
	for i, acc := range chart.Accounts {
		if acc.Code == "" || acc.Name == "" {
			return Chart{}, fmt.Errorf("accounts: chart row %d missing code or name", i)
		}
		if !acc.Type.Valid() {
			return Chart{}, fmt.Errorf("accounts: chart row %s has unknown type %q", acc.Code, acc.Type)
		}
		if acc.NormalBalance == "" {
			chart.Accounts[i].NormalBalance = acc.Type.DefaultNormalBalance()
		}
		if acc.Parent != "" {
			if _, ok := seen[acc.Parent]; !ok {
				return Chart{}, fmt.Errorf("accounts: chart row %s references parent %s before it is defined", acc.Code, acc.Parent)
			}
		}
		seen[acc.Code] = struct{}{}
	}
	return chart, nil
}
