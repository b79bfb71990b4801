// train retrains the animal detector on CPU with the ultralytics trainer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/training"
)

const (
	flagData     = "data"
	flagModel    = "model"
	flagEpochs   = "epochs"
	flagImgsz    = "imgsz"
	flagBatch    = "batch"
	flagWorkers  = "workers"
	flagProject  = "project"
	flagName     = "name"
	flagYes      = "yes"
	flagBinary   = "yolo"
	flagLogLevel = "log-level"
	flagNoVal    = "no-val"
)

func newApp() *cli.App {
	def := training.DefaultParams()
	return &cli.App{
		Name:  "train",
		Usage: "retrain the animal detector on CPU",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagBinary, Value: training.DefaultBinary, Usage: "ultralytics CLI binary"},
			&cli.StringFlag{Name: flagLogLevel, Value: "info", Usage: "log level"},
		},
		Before: func(c *cli.Context) error {
			log.Init(c.String(flagLogLevel))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "quick test of the training environment",
				Flags:  []cli.Flag{dataFlag(def)},
				Action: CheckAction,
			},
			{
				Name:  "run",
				Usage: "train, then validate the best weights",
				Flags: []cli.Flag{
					dataFlag(def),
					&cli.StringFlag{Name: flagModel, Value: def.Model, Usage: "starting weights"},
					&cli.IntFlag{Name: flagEpochs, Value: def.Epochs},
					&cli.IntFlag{Name: flagImgsz, Value: def.ImageSize, Usage: "training image size"},
					&cli.IntFlag{Name: flagBatch, Value: def.Batch},
					&cli.IntFlag{Name: flagWorkers, Value: def.Workers, Usage: "data loader workers"},
					&cli.StringFlag{Name: flagProject, Value: def.Project},
					&cli.StringFlag{Name: flagName, Value: def.Name, Usage: "run name"},
					&cli.BoolFlag{Name: flagYes, Aliases: []string{"y"}, Usage: "skip the confirmation prompt"},
					&cli.BoolFlag{Name: flagNoVal, Usage: "skip validation after training"},
				},
				Action: RunAction,
			},
		},
	}
}

func dataFlag(def training.Params) cli.Flag {
	return &cli.StringFlag{Name: flagData, Value: def.Data, Usage: "dataset YAML"}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "train:", err)
		os.Exit(1)
	}
}

func runner(c *cli.Context) *training.Runner {
	return &training.Runner{
		Binary: c.String(flagBinary),
		Output: c.App.Writer,
	}
}

func paramsFrom(c *cli.Context) training.Params {
	p := training.DefaultParams()
	p.Data = c.String(flagData)
	p.Model = c.String(flagModel)
	p.Epochs = c.Int(flagEpochs)
	p.ImageSize = c.Int(flagImgsz)
	p.Batch = c.Int(flagBatch)
	p.Workers = c.Int(flagWorkers)
	p.Project = c.String(flagProject)
	p.Name = c.String(flagName)
	return p
}

// CheckAction is the action for 'train check'.
func CheckAction(c *cli.Context) error {
	check := training.RunCheck(c.Context, runner(c), c.String(flagData))
	fmt.Fprintln(c.App.Writer, checkTable(check))
	if !check.OK() {
		return fmt.Errorf("environment not ready: %d problem(s)", len(check.Problems))
	}
	fmt.Fprintln(c.App.Writer, "System ready for CPU training. Expect several hours for a full run.")
	return nil
}

// RunAction is the action for 'train run'.
func RunAction(c *cli.Context) error {
	p := paramsFrom(c)
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := training.LoadDataConfig(p.Data)
	if err != nil {
		return err
	}

	info, err := training.CollectSystemInfo(c.Context)
	if err != nil {
		log.Warn("system info incomplete", "error", err)
	}
	fmt.Fprintln(c.App.Writer, systemTable(info))
	fmt.Fprintln(c.App.Writer, paramsTable(p, data))

	if !c.Bool(flagYes) {
		proceed := false
		err := huh.NewConfirm().
			Title("Proceed with CPU training?").
			Description("This may take several hours.").
			Affirmative("Yes").
			Negative("No").
			Value(&proceed).
			Run()
		if err != nil {
			return err
		}
		if !proceed {
			fmt.Fprintln(c.App.Writer, "Training cancelled.")
			return nil
		}
	}

	r := runner(c)
	res, err := r.Train(c.Context, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\nBest weights: %s\nLast weights: %s\n", res.Best, res.Last)

	if c.Bool(flagNoVal) {
		return nil
	}
	m, err := r.Validate(c.Context, p, res.Best)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Validation mAP50: %.4f\nValidation mAP50-95: %.4f\n", m.MAP50, m.MAP5095)
	return nil
}

func systemTable(info training.SystemInfo) string {
	t := table.NewWriter()
	t.SetTitle("System Information")
	for _, row := range info.Rows() {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	return t.Render()
}

func paramsTable(p training.Params, data *training.DataConfig) string {
	t := table.NewWriter()
	t.SetTitle("CPU Training Configuration")
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRow(table.Row{"classes", len(data.Names)})
	for _, a := range p.Args() {
		t.AppendRow(table.Row{a.Key, a.Value})
	}
	return t.Render()
}

func checkTable(check training.Check) string {
	t := table.NewWriter()
	t.SetTitle("Training Environment")
	t.AppendHeader(table.Row{"Check", "Result"})

	binary := "not found"
	if check.Binary != "" {
		binary = check.Binary
		if check.Version != "" {
			binary += " (" + check.Version + ")"
		}
	}
	t.AppendRow(table.Row{"yolo binary", binary})

	data := "not found"
	if check.DataFound {
		data = fmt.Sprintf("found, %d classes", check.Classes)
	}
	t.AppendRow(table.Row{"data config " + check.DataConfig, data})
	for _, dir := range check.Missing {
		t.AppendRow(table.Row{"dataset split", "missing: " + dir})
	}
	for _, row := range check.System.Rows() {
		t.AppendRow(table.Row{row[0], row[1]})
	}
	for _, err := range check.Problems {
		t.AppendFooter(table.Row{"problem", err.Error()})
	}
	return t.Render()
}
