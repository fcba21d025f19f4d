package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateVariant checks that a variant can produce a playable board
func ValidateVariant(v *Variant) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("variant validation: %w", err)
	}
	if v.Connect > max(v.Width, v.Height) {
		return fmt.Errorf("variant validation: connect %d exceeds the longest side (%dx%d)", v.Connect, v.Width, v.Height)
	}
	return nil
}

// LoadVariant loads a variant from a JSON file
func LoadVariant(filename string) (*Variant, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var v Variant
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse variant file '%s': %w", filename, err)
	}
	if v.Name == "" {
		v.Name = strings.TrimSuffix(filepath.Base(filename), ".json")
	}

	if err := ValidateVariant(&v); err != nil {
		return nil, err
	}

	return &v, nil
}
