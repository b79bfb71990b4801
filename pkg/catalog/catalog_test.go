package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNameOf_Known(t *testing.T) {
	c := Default()
	for id, want := range AnimalNames {
		if got := c.NameOf(id); got != want {
			t.Errorf("NameOf(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestNameOf_Unknown(t *testing.T) {
	c := Default()
	tests := []struct {
		id   int
		want string
	}{
		{21, "Class_21"},
		{999, "Class_999"},
		{-1, "Class_-1"},
	}
	for _, tc := range tests {
		got := c.NameOf(tc.id)
		if got != tc.want {
			t.Errorf("NameOf(%d) = %q, want %q", tc.id, got, tc.want)
		}
		if again := c.NameOf(tc.id); again != got {
			t.Errorf("NameOf(%d) not deterministic: %q then %q", tc.id, got, again)
		}
	}
	if c.NameOf(21) == c.NameOf(22) {
		t.Error("placeholders for different ids must differ")
	}
}

func TestIsCarnivorous(t *testing.T) {
	c := Default()
	for _, name := range CarnivorousAnimals {
		if !c.IsCarnivorous(name) {
			t.Errorf("IsCarnivorous(%q) = false, want true", name)
		}
	}

	notCarnivorous := []string{
		"Dog", "Zebra", "Duck", "", "lion", "LION", "Lion ", "brown bear", "Class_999",
	}
	for _, name := range notCarnivorous {
		if c.IsCarnivorous(name) {
			t.Errorf("IsCarnivorous(%q) = true, want false", name)
		}
	}
}

func TestNew_CopiesInputs(t *testing.T) {
	names := map[int]string{0: "Wolf"}
	carn := []string{"Wolf"}
	c := New(names, carn)

	names[0] = "Sheep"
	carn[0] = "Sheep"

	if got := c.NameOf(0); got != "Wolf" {
		t.Errorf("NameOf(0) = %q after caller mutation, want Wolf", got)
	}
	if !c.IsCarnivorous("Wolf") {
		t.Error("carnivorous set changed after caller mutation")
	}
}

func TestIDsAndCarnivorousSorted(t *testing.T) {
	c := Default()
	ids := c.IDs()
	if len(ids) != 21 || c.Len() != 21 {
		t.Fatalf("got %d ids, Len() = %d, want 21", len(ids), c.Len())
	}
	for i, id := range ids {
		if id != i {
			t.Fatalf("IDs()[%d] = %d", i, id)
		}
	}
	carn := c.Carnivorous()
	if len(carn) != 9 || carn[0] != "Bear" {
		t.Errorf("Carnivorous() = %v", carn)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantErr  bool
		checkID  int
		wantName string
		carn     string
	}{
		{
			name:     "list names",
			yaml:     "names: [Wolf, Sheep]\ncarnivorous: [Wolf]\n",
			checkID:  1,
			wantName: "Sheep",
			carn:     "Wolf",
		},
		{
			name:     "mapped names",
			yaml:     "names:\n  3: Lion\n  7: Bear\ncarnivorous:\n  - Lion\n",
			checkID:  7,
			wantName: "Bear",
			carn:     "Lion",
		},
		{
			name:     "dataset yaml extras ignored",
			yaml:     "path: data\ntrain: images/train\nval: images/val\nnc: 1\nnames: [Fox]\n",
			checkID:  0,
			wantName: "Fox",
		},
		{
			name:    "no names",
			yaml:    "carnivorous: [Wolf]\n",
			wantErr: true,
		},
		{
			name:    "scalar names",
			yaml:    "names: Wolf\n",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Parse([]byte(tc.yaml))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if got := c.NameOf(tc.checkID); got != tc.wantName {
				t.Errorf("NameOf(%d) = %q, want %q", tc.checkID, got, tc.wantName)
			}
			if tc.carn != "" && !c.IsCarnivorous(tc.carn) {
				t.Errorf("IsCarnivorous(%q) = false", tc.carn)
			}
		})
	}
}

func TestParse_EmptyIsErrEmpty(t *testing.T) {
	_, err := Parse([]byte("names: []\n"))
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse() error = %v, want ErrEmpty", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "animals.yaml")
	if err := os.WriteFile(path, []byte("names: [Otter]\ncarnivorous: [Otter]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if !c.IsCarnivorous(c.NameOf(0)) {
		t.Error("Otter should be carnivorous")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}
