// Package training drives the external ultralytics trainer: it describes the
// dataset, holds the CPU training parameters and runs the `yolo` binary.
package training

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/animal-detect/pkg/catalog"
)

// DefaultDataConfig is the dataset description looked up when none is given.
const DefaultDataConfig = "animal_data.yaml"

var (
	ErrNoNames    = errors.New("training: dataset defines no class names")
	ErrNoTrain    = errors.New("training: dataset has no train split")
	ErrNoVal      = errors.New("training: dataset has no val split")
	ErrNCMismatch = errors.New("training: nc does not match the number of names")
)

// DataConfig is the ultralytics dataset YAML. Carnivorous is an extension
// the trainer ignores; it lets the same file serve as the app's catalog.
type DataConfig struct {
	Path        string             `yaml:"path,omitempty"`
	Train       string             `yaml:"train"`
	Val         string             `yaml:"val"`
	Test        string             `yaml:"test,omitempty"`
	NC          int                `yaml:"nc,omitempty"`
	Names       catalog.ClassNames `yaml:"names"`
	Carnivorous []string           `yaml:"carnivorous,omitempty"`

	file string
}

// ParseDataConfig decodes a dataset YAML document.
func ParseDataConfig(data []byte) (*DataConfig, error) {
	var dc DataConfig
	if err := yaml.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("training: parse dataset: %w", err)
	}
	return &dc, nil
}

// LoadDataConfig reads and validates the dataset YAML at path.
func LoadDataConfig(path string) (*DataConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("training: %w", err)
	}
	dc, err := ParseDataConfig(data)
	if err != nil {
		return nil, err
	}
	dc.file = path
	return dc, dc.Validate()
}

// File returns the path the config was loaded from.
func (d *DataConfig) File() string {
	return d.file
}

// Validate checks the fields the trainer requires.
func (d *DataConfig) Validate() error {
	var errs []error
	if len(d.Names) == 0 {
		errs = append(errs, ErrNoNames)
	}
	if d.Train == "" {
		errs = append(errs, ErrNoTrain)
	}
	if d.Val == "" {
		errs = append(errs, ErrNoVal)
	}
	if d.NC != 0 && d.NC != len(d.Names) {
		errs = append(errs, fmt.Errorf("%w: nc=%d, %d names", ErrNCMismatch, d.NC, len(d.Names)))
	}
	return errors.Join(errs...)
}

// Root is the dataset root. A relative Path is resolved against the
// directory of the config file.
func (d *DataConfig) Root() string {
	root := d.Path
	if root == "" || filepath.IsAbs(root) || d.file == "" {
		return root
	}
	return filepath.Join(filepath.Dir(d.file), root)
}

// Split resolves a split directory against Root.
func (d *DataConfig) Split(split string) string {
	if split == "" || filepath.IsAbs(split) {
		return split
	}
	return filepath.Join(d.Root(), split)
}

// MissingSplits lists train/val/test directories that do not exist.
func (d *DataConfig) MissingSplits() []string {
	var missing []string
	for _, split := range []string{d.Train, d.Val, d.Test} {
		if split == "" {
			continue
		}
		dir := d.Split(split)
		if _, err := os.Stat(dir); err != nil {
			missing = append(missing, dir)
		}
	}
	return missing
}

// ClassList returns the class names ordered by id.
func (d *DataConfig) ClassList() []string {
	ids := make([]int, 0, len(d.Names))
	for id := range d.Names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = d.Names[id]
	}
	return out
}

// Catalog builds the class catalog the trained model will use. Without a
// carnivorous list the built-in one applies.
func (d *DataConfig) Catalog() *catalog.Catalog {
	carn := d.Carnivorous
	if len(carn) == 0 {
		carn = catalog.CarnivorousAnimals
	}
	return catalog.New(d.Names, carn)
}
