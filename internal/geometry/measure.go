package geometry

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/colourskel/skeleton-server/pkg/types"
)

// MeasurementResult is the distance between two joints of the selected subject
type MeasurementResult struct {
	JointA   types.JointType `json:"joint_a"`
	JointB   types.JointType `json:"joint_b"`
	Distance float64         `json:"distance"`
	Label    string          `json:"label"`
}

// DefaultPrecision is the number of decimals printed in labels
const DefaultPrecision = 4

// Formatter renders measurement labels for a language
type Formatter struct {
	printer   *message.Printer
	numFormat string
}

// NewFormatter creates a Formatter printing distances with precision decimals.
// A negative precision selects DefaultPrecision.
func NewFormatter(tag language.Tag, precision int) *Formatter {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return &Formatter{
		printer:   message.NewPrinter(tag),
		numFormat: fmt.Sprintf("%%.%df", precision),
	}
}

var defaultFormatter = NewFormatter(language.English, DefaultPrecision)

// Distance formats a distance value.
func (f *Formatter) Distance(d float64) string {
	return f.printer.Sprintf(f.numFormat, d)
}

// Label builds "Between: A and B - d".
func (f *Formatter) Label(a, b types.JointType, d float64) string {
	return f.printer.Sprintf("Between: %s and %s - %s", a.String(), b.String(), f.Distance(d))
}

// Measure computes the distance between joints a and b of skel.
// A nil formatter uses English with DefaultPrecision.
func Measure(skel *types.Skeleton, a, b types.JointType, f *Formatter) MeasurementResult {
	if f == nil {
		f = defaultFormatter
	}
	d := Distance(skel.Joint(a), skel.Joint(b))
	return MeasurementResult{
		JointA:   a,
		JointB:   b,
		Distance: d,
		Label:    f.Label(a, b, d),
	}
}
