package ips

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/luxops/luxfleet/pkg/models"
	"gopkg.in/yaml.v3"
)

// LoadCSV reads one address segment per CSV cell. Lines starting with '#'
// are comments, and a leading "hostname" header row is skipped. Each cell
// goes through the full range grammar.
func LoadCSV(path string, defaultPort int) ([]models.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ip file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read ip file: %w", err)
	}

	var out []models.Address
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}
		if i == 0 && strings.TrimSpace(row[0]) == "hostname" {
			continue
		}
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			addrs, err := IterRanges(cell, defaultPort)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
			}
			out = append(out, addrs...)
		}
	}
	return out, nil
}

// yamlMiners is the YAML address-file schema:
//
//	miners:
//	  luxos_port: 4028
//	  addresses:
//	    - 10.0.0.1-10.0.0.9
type yamlMiners struct {
	Miners struct {
		LuxosPort int      `yaml:"luxos_port"`
		Addresses []string `yaml:"addresses"`
	} `yaml:"miners"`
}

// LoadYAML reads the miners mapping form. Per-segment ports win over
// luxos_port, which wins over defaultPort.
func LoadYAML(path string, defaultPort int) ([]models.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read yaml file: %w", err)
	}

	var doc yamlMiners
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml file: %w", err)
	}
	if len(doc.Miners.Addresses) == 0 {
		return nil, fmt.Errorf("%s: no miners.addresses entries", path)
	}

	port := doc.Miners.LuxosPort
	if port == 0 {
		port = defaultPort
	}

	var out []models.Address
	for _, segment := range doc.Miners.Addresses {
		addrs, err := IterRanges(segment, port)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, addrs...)
	}
	return out, nil
}

// LoadFile sniffs the format: YAML when the extension says so or the file
// parses as the miners mapping, CSV otherwise.
func LoadFile(path string, defaultPort int) ([]models.Address, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return LoadYAML(path, defaultPort)
	}
	if addrs, err := LoadYAML(path, defaultPort); err == nil {
		return addrs, nil
	}
	return LoadCSV(path, defaultPort)
}
