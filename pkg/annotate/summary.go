package annotate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Summary aggregates one annotation pass.
type Summary struct {
	CarnivorousCount int
	species          map[string]struct{}
}

func (s *Summary) add(name string, carnivorous bool) {
	if s.species == nil {
		s.species = make(map[string]struct{})
	}
	s.species[name] = struct{}{}
	if carnivorous {
		s.CarnivorousCount++
	}
}

// Species returns the distinct species names, sorted.
func (s Summary) Species() []string {
	out := make([]string, 0, len(s.species))
	for name := range s.species {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SpeciesCount returns the number of distinct species.
func (s Summary) SpeciesCount() int {
	return len(s.species)
}

// Notice is the one-shot message shown after a single-image pass.
type Notice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notice builds the user-facing summary message.
func (s Summary) Notice() Notice {
	detected := "None"
	if len(s.species) > 0 {
		detected = strings.Join(s.Species(), ", ")
	}
	if s.CarnivorousCount > 0 {
		return Notice{
			Title: "Carnivorous Animals Detected!",
			Body: fmt.Sprintf("Number of carnivorous animals detected: %d\n\nDetected animals: %s",
				s.CarnivorousCount, detected),
		}
	}
	return Notice{
		Title: "Detection Complete",
		Body:  "No carnivorous animals detected.\n\nDetected animals: " + detected,
	}
}

type summaryJSON struct {
	CarnivorousCount int      `json:"carnivorous_count"`
	Species          []string `json:"species"`
}

// MarshalJSON encodes the species set as a sorted list.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		CarnivorousCount: s.CarnivorousCount,
		Species:          s.Species(),
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var v summaryJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NewSummary(v.CarnivorousCount, v.Species...)
	return nil
}

// NewSummary builds a summary directly, e.g. when replaying a recording.
func NewSummary(carnivorous int, species ...string) Summary {
	s := Summary{CarnivorousCount: carnivorous}
	for _, name := range species {
		s.add(name, false)
	}
	return s
}
