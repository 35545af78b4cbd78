package license

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout accepted by LoadSeed.
type SeedFile struct {
	Businesses []Business `yaml:"businesses"`
}

// LoadSeed reads business profiles from a YAML file.
func LoadSeed(path string) ([]Business, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed.Businesses, nil
}

// Seed saves every business in the file to store and returns how many were written.
func Seed(ctx context.Context, store Store, path string) (int, error) {
	businesses, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	for i := range businesses {
		if err := store.SaveBusiness(ctx, &businesses[i]); err != nil {
			return i, fmt.Errorf("seed business %q: %w", businesses[i].Name, err)
		}
	}
	return len(businesses), nil
}
