package training

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
)

// Params are the CPU training settings passed to `yolo detect train`.
type Params struct {
	Data         string
	Model        string
	Epochs       int
	ImageSize    int
	Batch        int
	Workers      int
	Device       string
	Project      string
	Name         string
	Patience     int
	SavePeriod   int
	LR0          float64
	WarmupEpochs float64
	CloseMosaic  int
	AMP          bool
}

// DefaultParams returns settings tuned for training the nano model on a
// CPU-only machine.
func DefaultParams() Params {
	return Params{
		Data:         DefaultDataConfig,
		Model:        "yolov8n.pt",
		Epochs:       5,
		ImageSize:    416,
		Batch:        2,
		Workers:      min(4, runtime.NumCPU()),
		Device:       "cpu",
		Project:      "animal_detection_cpu",
		Name:         "yolov8_animals_cpu",
		Patience:     15,
		SavePeriod:   5,
		LR0:          0.001,
		WarmupEpochs: 3,
		CloseMosaic:  5,
		AMP:          false,
	}
}

// Validate rejects settings the trainer would fail on.
func (p Params) Validate() error {
	var errs []error
	if p.Data == "" {
		errs = append(errs, errors.New("training: data config required"))
	}
	if p.Model == "" {
		errs = append(errs, errors.New("training: model required"))
	}
	if p.Epochs < 1 {
		errs = append(errs, fmt.Errorf("training: epochs %d must be positive", p.Epochs))
	}
	if p.ImageSize < 32 || p.ImageSize%32 != 0 {
		errs = append(errs, fmt.Errorf("training: image size %d must be a positive multiple of 32", p.ImageSize))
	}
	if p.Batch < 1 {
		errs = append(errs, fmt.Errorf("training: batch %d must be positive", p.Batch))
	}
	if p.Workers < 0 {
		errs = append(errs, fmt.Errorf("training: workers %d must not be negative", p.Workers))
	}
	if p.LR0 <= 0 {
		errs = append(errs, fmt.Errorf("training: lr0 %g must be positive", p.LR0))
	}
	return errors.Join(errs...)
}

// Arg is one key=value argument of the ultralytics CLI.
type Arg struct {
	Key   string
	Value string
}

func (a Arg) String() string {
	return a.Key + "=" + a.Value
}

// Args renders the training arguments in a fixed order.
func (p Params) Args() []Arg {
	return []Arg{
		{"data", p.Data},
		{"model", p.Model},
		{"epochs", strconv.Itoa(p.Epochs)},
		{"imgsz", strconv.Itoa(p.ImageSize)},
		{"batch", strconv.Itoa(p.Batch)},
		{"workers", strconv.Itoa(p.Workers)},
		{"device", p.Device},
		{"project", p.Project},
		{"name", p.Name},
		{"patience", strconv.Itoa(p.Patience)},
		{"save_period", strconv.Itoa(p.SavePeriod)},
		{"lr0", formatFloat(p.LR0)},
		{"warmup_epochs", formatFloat(p.WarmupEpochs)},
		{"close_mosaic", strconv.Itoa(p.CloseMosaic)},
		{"amp", formatBool(p.AMP)},
		{"profile", formatBool(false)},
		{"save", formatBool(true)},
		{"plots", formatBool(true)},
		{"verbose", formatBool(true)},
	}
}

// TrainCommand returns the argv after the binary name.
func (p Params) TrainCommand() []string {
	return append([]string{"detect", "train"}, argStrings(p.Args())...)
}

// ValCommand returns the argv validating weights against the dataset.
func (p Params) ValCommand(weights string) []string {
	return append([]string{"detect", "val"}, argStrings([]Arg{
		{"model", weights},
		{"data", p.Data},
		{"imgsz", strconv.Itoa(p.ImageSize)},
		{"batch", strconv.Itoa(p.Batch)},
		{"device", p.Device},
	})...)
}

func argStrings(args []Arg) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ultralytics parses Python literals.
func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
