package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned when a catalog file defines no classes.
var ErrEmpty = errors.New("catalog: no class names defined")

// ClassNames decodes the ultralytics `names:` field, which is either a
// list (index is the id) or an explicit id→name mapping.
type ClassNames map[int]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *ClassNames) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		out := make(ClassNames, len(list))
		for i, name := range list {
			out[i] = name
		}
		*n = out
		return nil
	case yaml.MappingNode:
		var m map[int]string
		if err := value.Decode(&m); err != nil {
			return err
		}
		*n = ClassNames(m)
		return nil
	default:
		return fmt.Errorf("catalog: names must be a list or mapping, got line %d", value.Line)
	}
}

// File is the on-disk catalog layout. It is a superset of the dataset
// YAML used for training, so the same file can serve both.
type File struct {
	Names       ClassNames `yaml:"names"`
	Carnivorous []string   `yaml:"carnivorous"`
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if len(f.Names) == 0 {
		return nil, ErrEmpty
	}
	return New(f.Names, f.Carnivorous), nil
}

// Load reads a catalog YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Parse(data)
}
