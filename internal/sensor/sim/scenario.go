package sim

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/colourskel/skeleton-server/pkg/types"
)

// MaxSlots is the number of skeleton slots the sensor reports every frame
const MaxSlots = 6

//go:embed scenarios/default.yaml
var defaultScenario []byte

// Scenario describes the subjects a simulated sensor shows over time
type Scenario struct {
	Name     string    `yaml:"name"`
	Length   int       `yaml:"length"` // Ticks per loop, 0 = never wraps
	Subjects []Subject `yaml:"subjects"`
}

// Subject is one simulated person
type Subject struct {
	ID           int       `yaml:"id"`            // Tracking id
	Slot         int       `yaml:"slot"`          // Skeleton slot 0-5
	Distance     float64   `yaml:"distance"`      // Metres from the sensor at Enter
	OffsetX      float64   `yaml:"offset_x"`      // Metres right of the optical axis
	Approach     float64   `yaml:"approach"`      // Metres per tick towards the sensor
	Enter        int       `yaml:"enter"`         // First visible tick
	Leave        int       `yaml:"leave"`         // First tick gone, 0 = stays
	PositionOnly bool      `yaml:"position_only"` // Reported without joints
	Dropouts     []Dropout `yaml:"dropouts"`
}

// Dropout degrades one joint over a tick range
type Dropout struct {
	Joint types.JointType `yaml:"joint"`
	From  int             `yaml:"from"`
	To    int             `yaml:"to"`    // Exclusive
	State string          `yaml:"state"` // inferred or not_tracked
}

// LoadScenario reads a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

// DefaultScenario returns the built-in scenario
func DefaultScenario() *Scenario {
	sc, err := ParseScenario(defaultScenario)
	if err != nil {
		panic(fmt.Sprintf("built-in scenario: %v", err))
	}
	return sc
}

// ParseScenario decodes and validates scenario YAML
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks slot and tick ranges
func (sc *Scenario) Validate() error {
	if sc.Length < 0 {
		return fmt.Errorf("length must be >= 0, got %d", sc.Length)
	}
	slots := map[int]int{}
	for _, s := range sc.Subjects {
		if s.Slot < 0 || s.Slot >= MaxSlots {
			return fmt.Errorf("subject %d: slot %d out of range", s.ID, s.Slot)
		}
		if s.Distance <= 0 {
			return fmt.Errorf("subject %d: distance must be > 0", s.ID)
		}
		if s.Leave != 0 && s.Leave <= s.Enter {
			return fmt.Errorf("subject %d: leave %d before enter %d", s.ID, s.Leave, s.Enter)
		}
		if other, ok := slots[s.Slot]; ok && overlaps(sc.subject(other), s) {
			return fmt.Errorf("subjects %d and %d share slot %d", other, s.ID, s.Slot)
		}
		slots[s.Slot] = s.ID
		for _, d := range s.Dropouts {
			if _, err := dropoutState(d.State); err != nil {
				return fmt.Errorf("subject %d: %w", s.ID, err)
			}
		}
	}
	return nil
}

func (sc *Scenario) subject(id int) Subject {
	for _, s := range sc.Subjects {
		if s.ID == id {
			return s
		}
	}
	return Subject{}
}

func overlaps(a, b Subject) bool {
	aEnd, bEnd := a.Leave, b.Leave
	if aEnd == 0 {
		aEnd = int(^uint(0) >> 1)
	}
	if bEnd == 0 {
		bEnd = int(^uint(0) >> 1)
	}
	return a.Enter < bEnd && b.Enter < aEnd
}

func dropoutState(s string) (types.JointTrackingState, error) {
	switch s {
	case "inferred":
		return types.JointInferred, nil
	case "not_tracked", "":
		return types.JointNotTracked, nil
	default:
		return 0, fmt.Errorf("invalid dropout state: %s", s)
	}
}

// visible reports whether the subject is in view at tick
func (s Subject) visible(tick int) bool {
	return tick >= s.Enter && (s.Leave == 0 || tick < s.Leave)
}

// tickInLoop maps an absolute tick into the scenario loop
func (sc *Scenario) tickInLoop(tick int) int {
	if sc.Length > 0 {
		return tick % sc.Length
	}
	return tick
}
