package training

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/animal-detect/internal/log"
)

// DefaultBinary is the ultralytics command line entry point.
const DefaultBinary = "yolo"

// ErrNoBinary is returned when the trainer binary is not on PATH.
var ErrNoBinary = errors.New("training: yolo binary not found")

// Result locates the artifacts of a finished training run.
type Result struct {
	SaveDir string
	Best    string
	Last    string
}

// Metrics are the box metrics of the `all` row of a validation run.
type Metrics struct {
	Images    int
	Instances int
	Precision float64
	Recall    float64
	MAP50     float64
	MAP5095   float64
}

// Runner executes the trainer binary, streaming its output.
type Runner struct {
	// Binary defaults to DefaultBinary.
	Binary string

	// Output receives the trainer's combined stdout and stderr.
	Output io.Writer

	// Dir is the working directory of the trainer.
	Dir string

	Logger *slog.Logger
}

func (r *Runner) binary() string {
	if r.Binary == "" {
		return DefaultBinary
	}
	return r.Binary
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return log.Component("training")
	}
	return r.Logger
}

// LookPath resolves the trainer binary.
func (r *Runner) LookPath() (string, error) {
	path, err := exec.LookPath(r.binary())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoBinary, err)
	}
	return path, nil
}

// Version returns the trainer's reported version.
func (r *Runner) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, r.binary(), "version").Output()
	if err != nil {
		return "", fmt.Errorf("training: yolo version: %w", err)
	}
	return strings.TrimSpace(stripANSI(string(out))), nil
}

// Train runs `yolo detect train` with p and returns where the weights were
// written.
func (r *Runner) Train(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var saveDir string
	err := r.run(ctx, p.TrainCommand(), func(line string) {
		if dir, ok := parseSaveDir(line); ok {
			saveDir = dir
		}
	})
	if err != nil {
		return nil, fmt.Errorf("training: train: %w", err)
	}

	if saveDir == "" {
		saveDir = filepath.Join(p.Project, p.Name)
	}
	if !filepath.IsAbs(saveDir) && r.Dir != "" {
		saveDir = filepath.Join(r.Dir, saveDir)
	}
	res := &Result{
		SaveDir: saveDir,
		Best:    filepath.Join(saveDir, "weights", "best.pt"),
		Last:    filepath.Join(saveDir, "weights", "last.pt"),
	}
	r.logger().Info("training finished", "save_dir", res.SaveDir)
	return res, nil
}

// Validate runs `yolo detect val` on weights and returns the overall box
// metrics.
func (r *Runner) Validate(ctx context.Context, p Params, weights string) (*Metrics, error) {
	var metrics *Metrics
	err := r.run(ctx, p.ValCommand(weights), func(line string) {
		if m, ok := ParseMetrics(line); ok {
			metrics = &m
		}
	})
	if err != nil {
		return nil, fmt.Errorf("training: validate: %w", err)
	}
	if metrics == nil {
		return nil, errors.New("training: validate: no metrics in output")
	}
	return metrics, nil
}

// run executes the binary with args, copying output to r.Output and handing
// every line to onLine.
func (r *Runner) run(ctx context.Context, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.logger().Info("running trainer", "binary", r.binary(), "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		pw.Close()
		return err
	}

	out := r.Output
	if out == nil {
		out = io.Discard
	}

	var g errgroup.Group
	g.Go(func() error {
		tee := io.TeeReader(pr, out)
		err := scanLines(tee, onLine)
		if err != nil {
			// Keep the child's pipe flowing so it can exit.
			io.Copy(io.Discard, tee)
		}
		return err
	})
	g.Go(func() error {
		err := cmd.Wait()
		pw.CloseWithError(io.EOF)
		return err
	})
	return g.Wait()
}

// scanLines splits on both \n and \r; progress bars redraw with \r.
func scanLines(rd io.Reader, onLine func(string)) error {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		for i, b := range data {
			if b == '\n' || b == '\r' {
				return i + 1, data[:i], nil
			}
		}
		if atEOF && len(data) > 0 {
			return len(data), data, nil
		}
		return 0, nil, nil
	})
	for sc.Scan() {
		onLine(stripANSI(sc.Text()))
	}
	return sc.Err()
}

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

func stripANSI(s string) string {
	return ansi.ReplaceAllString(s, "")
}

// parseSaveDir recognizes the trainer's "Results saved to <dir>" line.
func parseSaveDir(line string) (string, bool) {
	const marker = "Results saved to "
	i := strings.Index(line, marker)
	if i < 0 {
		return "", false
	}
	dir := strings.TrimSpace(line[i+len(marker):])
	return dir, dir != ""
}

// ParseMetrics parses the `all` row of a validation table:
//
//	all   128   929   0.64   0.537   0.605   0.446
func ParseMetrics(line string) (Metrics, bool) {
	f := strings.Fields(line)
	if len(f) != 7 || f[0] != "all" {
		return Metrics{}, false
	}
	var (
		m    Metrics
		err  error
		errs []error
	)
	m.Images, err = strconv.Atoi(f[1])
	errs = append(errs, err)
	m.Instances, err = strconv.Atoi(f[2])
	errs = append(errs, err)
	floats := []*float64{&m.Precision, &m.Recall, &m.MAP50, &m.MAP5095}
	for i, dst := range floats {
		*dst, err = strconv.ParseFloat(f[3+i], 64)
		errs = append(errs, err)
	}
	if errors.Join(errs...) != nil {
		return Metrics{}, false
	}
	return m, true
}
