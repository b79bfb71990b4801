package training

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/animal-detect/internal/log"
)

const sampleData = `
path: datasets/animals
train: images/train
val: images/val
nc: 3
names:
  - Dog
  - Cat
  - Lion
carnivorous: [Cat, Lion]
`

func TestParseDataConfig(t *testing.T) {
	dc, err := ParseDataConfig([]byte(sampleData))
	if err != nil {
		t.Fatal(err)
	}
	if err := dc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := strings.Join(dc.ClassList(), ","); got != "Dog,Cat,Lion" {
		t.Errorf("ClassList = %s", got)
	}
	cat := dc.Catalog()
	if cat.NameOf(2) != "Lion" || !cat.IsCarnivorous("Lion") || cat.IsCarnivorous("Dog") {
		t.Error("catalog does not match dataset")
	}
}

func TestDataConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"no names", "train: a\nval: b\n", ErrNoNames},
		{"no train", "val: b\nnames: [Dog]\n", ErrNoTrain},
		{"no val", "train: a\nnames: [Dog]\n", ErrNoVal},
		{"nc mismatch", "train: a\nval: b\nnc: 2\nnames: [Dog]\n", ErrNCMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc, err := ParseDataConfig([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if err := dc.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadDataConfigResolvesSplits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "animal_data.yaml")
	if err := os.WriteFile(path, []byte(sampleData), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "datasets/animals/images/train"), 0o755); err != nil {
		t.Fatal(err)
	}

	dc, err := LoadDataConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if dc.File() != path {
		t.Errorf("File = %s", dc.File())
	}
	wantVal := filepath.Join(dir, "datasets/animals/images/val")
	if got := dc.Split(dc.Val); got != wantVal {
		t.Errorf("Split(val) = %s, want %s", got, wantVal)
	}
	missing := dc.MissingSplits()
	if len(missing) != 1 || missing[0] != wantVal {
		t.Errorf("MissingSplits = %v", missing)
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.Workers < 1 || p.Workers > 4 {
		t.Errorf("Workers = %d, want 1..4", p.Workers)
	}

	args := map[string]string{}
	for _, a := range p.Args() {
		args[a.Key] = a.Value
	}
	want := map[string]string{
		"model":         "yolov8n.pt",
		"epochs":        "5",
		"imgsz":         "416",
		"batch":         "2",
		"device":        "cpu",
		"project":       "animal_detection_cpu",
		"name":          "yolov8_animals_cpu",
		"patience":      "15",
		"save_period":   "5",
		"lr0":           "0.001",
		"warmup_epochs": "3",
		"close_mosaic":  "5",
		"amp":           "False",
		"plots":         "True",
	}
	for k, v := range want {
		if args[k] != v {
			t.Errorf("%s = %q, want %q", k, args[k], v)
		}
	}

	cmd := p.TrainCommand()
	if cmd[0] != "detect" || cmd[1] != "train" || cmd[2] != "data="+DefaultDataConfig {
		t.Errorf("TrainCommand = %v", cmd[:3])
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"no data", func(p *Params) { p.Data = "" }},
		{"zero epochs", func(p *Params) { p.Epochs = 0 }},
		{"odd image size", func(p *Params) { p.ImageSize = 400 }},
		{"zero batch", func(p *Params) { p.Batch = 0 }},
		{"negative lr", func(p *Params) { p.LR0 = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseMetrics(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want Metrics
	}{
		{"                   all        128        929      0.64      0.537      0.605      0.446", true,
			Metrics{Images: 128, Instances: 929, Precision: 0.64, Recall: 0.537, MAP50: 0.605, MAP5095: 0.446}},
		{"                   Dog         40        100       0.7        0.6        0.65       0.5", false, Metrics{}},
		{"all 1 2 x 0.1 0.2 0.3", false, Metrics{}},
		{"", false, Metrics{}},
	}
	for _, tt := range tests {
		got, ok := ParseMetrics(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseMetrics(%q) = %+v, %v", tt.line, got, ok)
		}
	}
}

func TestParseSaveDir(t *testing.T) {
	dir, ok := parseSaveDir(stripANSI("Results saved to \x1b[1mruns/detect/train7\x1b[0m"))
	if !ok || dir != "runs/detect/train7" {
		t.Errorf("parseSaveDir = %q, %v", dir, ok)
	}
	if _, ok := parseSaveDir("Epoch 1/5"); ok {
		t.Error("matched unrelated line")
	}
}

const fakeYolo = `#!/bin/sh
case "$2" in
train)
  printf 'Epoch 1/5\r'
  printf 'Epoch 5/5\n'
  printf 'Results saved to \033[1m%s\033[0m\n' "$FAKE_SAVE_DIR"
  ;;
val)
  echo "                 Class     Images  Instances      Box(P          R      mAP50  mAP50-95)"
  echo "                   all         10         20        0.5       0.25       0.4        0.3"
  ;;
*)
  echo "8.0.0"
  ;;
esac
`

func fakeRunner(t *testing.T, out *bytes.Buffer) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script trainer")
	}
	bin := filepath.Join(t.TempDir(), "yolo")
	if err := os.WriteFile(bin, []byte(fakeYolo), 0o755); err != nil {
		t.Fatal(err)
	}
	return &Runner{Binary: bin, Output: out, Logger: log.Discard()}
}

func TestRunnerTrainAndValidate(t *testing.T) {
	t.Setenv("FAKE_SAVE_DIR", "/tmp/runs/train3")
	var out bytes.Buffer
	r := fakeRunner(t, &out)
	ctx := context.Background()

	res, err := r.Train(ctx, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if res.SaveDir != "/tmp/runs/train3" || res.Best != "/tmp/runs/train3/weights/best.pt" {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(out.String(), "Epoch 5/5") {
		t.Errorf("output not streamed: %q", out.String())
	}

	m, err := r.Validate(ctx, DefaultParams(), res.Best)
	if err != nil {
		t.Fatal(err)
	}
	if m.MAP50 != 0.4 || m.MAP5095 != 0.3 || m.Images != 10 {
		t.Errorf("metrics = %+v", m)
	}

	v, err := r.Version(ctx)
	if err != nil || v != "8.0.0" {
		t.Errorf("Version = %q, %v", v, err)
	}
}

func TestRunnerTrainFallbackSaveDir(t *testing.T) {
	t.Setenv("FAKE_SAVE_DIR", "")
	r := fakeRunner(t, &bytes.Buffer{})
	r.Dir = t.TempDir()

	res, err := r.Train(context.Background(), DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(r.Dir, "animal_detection_cpu", "yolov8_animals_cpu")
	if res.SaveDir != want {
		t.Errorf("SaveDir = %s, want %s", res.SaveDir, want)
	}
}

func TestRunnerOverlongLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script trainer")
	}
	bin := filepath.Join(t.TempDir(), "yolo")
	script := "#!/bin/sh\nhead -c 2000000 /dev/zero | tr '\\000' x\necho\necho done\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	r := &Runner{Binary: bin, Output: &out, Logger: log.Discard()}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := r.run(ctx, nil, func(string) {})
	if ctx.Err() != nil {
		t.Fatal("trainer did not exit after the scanner gave up")
	}
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("run() = %v, want bufio.ErrTooLong", err)
	}
	if !strings.HasSuffix(out.String(), "done\n") {
		t.Error("output after the long line was not copied")
	}
}

func TestRunCheck(t *testing.T) {
	r := &Runner{Binary: "definitely-not-a-trainer", Logger: log.Discard()}
	c := RunCheck(context.Background(), r, filepath.Join(t.TempDir(), "missing.yaml"))
	if c.OK() {
		t.Fatal("check passed without binary or data")
	}
	if len(c.Problems) != 2 || !errors.Is(c.Problems[0], ErrNoBinary) {
		t.Errorf("Problems = %v", c.Problems)
	}
	if c.DataFound {
		t.Error("DataFound for missing file")
	}
	if c.System.LogicalCores < 1 {
		t.Errorf("LogicalCores = %d", c.System.LogicalCores)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		512:        "512 B",
		2048:       "2.0 KiB",
		3 << 30:    "3.0 GiB",
		1536 << 20: "1.5 GiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %s, want %s", in, got, want)
		}
	}
}
