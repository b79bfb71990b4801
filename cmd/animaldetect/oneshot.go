package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/app"
	"github.com/teslashibe/animal-detect/pkg/record"
)

// detectOnce loads the model and image, runs a single pass and prints the
// notice. The annotated frame is saved when -out is set.
func detectOnce(ctx context.Context, opts options) error {
	cat, err := loadCatalog(opts.cfg)
	if err != nil {
		return err
	}
	core := app.New(app.Config{
		DefaultModel: defaultModel(opts.cfg),
		OpenDetector: detectorOpener(ctx, opts.cfg),
		Catalog:      cat,
	})
	defer core.Close()

	if err := core.LoadModel(""); err != nil {
		return err
	}
	if err := core.LoadImage(opts.detect); err != nil {
		return err
	}
	res, err := core.DetectOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n\n%s\n\n", res.Notice.Title, res.Notice.Body)
	if len(res.Detections) > 0 {
		t := table.NewWriter()
		t.AppendHeader(table.Row{"#", "Class", "Confidence", "Box", "Carnivorous"})
		for i, d := range res.Detections {
			t.AppendRow(table.Row{
				i + 1,
				d.Name,
				fmt.Sprintf("%.2f", d.Confidence),
				fmt.Sprintf("(%d,%d)-(%d,%d)", d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y),
				d.Carnivorous,
			})
		}
		fmt.Println(t.Render())
	}

	if opts.out != "" {
		if err := imaging.Save(res.Annotated, opts.out, imaging.JPEGQuality(opts.cfg.JPEGQuality)); err != nil {
			return fmt.Errorf("save %s: %w", opts.out, err)
		}
		log.Info("annotated image written", "path", opts.out)
	}
	return nil
}

// dumpLog prints a detection log as a table.
func dumpLog(w io.Writer, path string) error {
	entries, err := record.ReadFile(path)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(path)
	t.AppendHeader(table.Row{"Time", "Frame", "Detections", "Carnivorous", "Species"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Time.Format(time.TimeOnly + ".000"),
			e.Index,
			len(e.Detections),
			e.CarnivorousCount,
			strings.Join(e.Species, ", "),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "frames", len(entries)})
	t.Render()
	return nil
}
