package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// CompaniesFile is the companies.yml overlay: a longer company list kept
// apart from the main config.
type CompaniesFile struct {
	Sources struct {
		Greenhouse struct {
			Companies []string `yaml:"companies"`
		} `yaml:"greenhouse"`
		Lever struct {
			Companies []string `yaml:"companies"`
		} `yaml:"lever"`
		Ashby struct {
			Companies []string `yaml:"companies"`
		} `yaml:"ashby"`
		Workable struct {
			Companies []string `yaml:"companies"`
		} `yaml:"workable"`
	} `yaml:"sources"`
}

// OverlayCompanies replaces the per-vendor company lists that the overlay
// file sets. A missing file is not an error.
func OverlayCompanies(cfg *Config, companiesPath string) error {
	b, err := os.ReadFile(companiesPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var cf CompaniesFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return err
	}

	if len(cf.Sources.Greenhouse.Companies) > 0 {
		cfg.Sources.Greenhouse.Companies = cf.Sources.Greenhouse.Companies
	}
	if len(cf.Sources.Lever.Companies) > 0 {
		cfg.Sources.Lever.Companies = cf.Sources.Lever.Companies
	}
	if len(cf.Sources.Ashby.Companies) > 0 {
		cfg.Sources.Ashby.Companies = cf.Sources.Ashby.Companies
	}
	if len(cf.Sources.Workable.Companies) > 0 {
		cfg.Sources.Workable.Companies = cf.Sources.Workable.Companies
	}
	return nil
}
