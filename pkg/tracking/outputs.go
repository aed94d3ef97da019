package tracking

import (
	"fmt"
	"strings"
)

// Outputs is the set of optional debug products the tracker computes. It
// never affects the estimate.
type Outputs uint8

const (
	// OutputOverlay annotates the frame with candidates, belief, ROIs and state.
	OutputOverlay Outputs = 1 << iota
	// OutputSkin renders the skin posterior map. Requires the skin model.
	OutputSkin
	// OutputHistogram renders the hue/saturation histogram.
	OutputHistogram
	// OutputFlow renders the flow magnitude over the flow ROI.
	OutputFlow
)

// Legacy debug mask bits, as accepted on the command line.
const (
	maskOverlay   = 0x02
	maskSkin      = 0x04
	maskHistogram = 0x08
	maskFlow      = 0x10
)

var outputNames = []struct {
	out  Outputs
	name string
	bit  uint16
}{
	{OutputOverlay, "overlay", maskOverlay},
	{OutputSkin, "skin", maskSkin},
	{OutputHistogram, "histogram", maskHistogram},
	{OutputFlow, "flow", maskFlow},
}

// Has reports whether every output in o2 is requested.
func (o Outputs) Has(o2 Outputs) bool {
	return o&o2 == o2
}

// String lists the requested outputs, comma separated.
func (o Outputs) String() string {
	var names []string
	for _, n := range outputNames {
		if o.Has(n.out) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// OutputsFromMask converts a numeric debug mask to an output set. Bit 0x02
// is the overlay, 0x04 skin, 0x08 histogram and 0x10 flow; other bits are
// ignored.
func OutputsFromMask(mask uint16) Outputs {
	var o Outputs
	for _, n := range outputNames {
		if mask&n.bit != 0 {
			o |= n.out
		}
	}
	return o
}

// ParseOutputs converts output names to an output set.
func ParseOutputs(names []string) (Outputs, error) {
	var o Outputs
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, n := range outputNames {
			if n.name == name {
				o |= n.out
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("tracking: unknown output %q", name)
		}
	}
	return o, nil
}
