package tracking

import "testing"

func TestOutputsFromMask(t *testing.T) {
	tests := []struct {
		mask uint16
		want Outputs
	}{
		{0x00, 0},
		{0x01, 0},
		{0x02, OutputOverlay},
		{0x04, OutputSkin},
		{0x08, OutputHistogram},
		{0x10, OutputFlow},
		{0x1e, OutputOverlay | OutputSkin | OutputHistogram | OutputFlow},
	}
	for _, tc := range tests {
		if got := OutputsFromMask(tc.mask); got != tc.want {
			t.Errorf("mask %#x: got %v, want %v", tc.mask, got, tc.want)
		}
	}
}

func TestParseOutputs(t *testing.T) {
	got, err := ParseOutputs([]string{"overlay", " Flow ", ""})
	if err != nil {
		t.Fatalf("ParseOutputs: %v", err)
	}
	if got != OutputOverlay|OutputFlow {
		t.Errorf("got %v", got)
	}
	if got.String() != "overlay,flow" {
		t.Errorf("String: got %q", got.String())
	}
	if !got.Has(OutputFlow) || got.Has(OutputSkin) {
		t.Error("Has mismatch")
	}

	if _, err := ParseOutputs([]string{"sparkles"}); err == nil {
		t.Error("expected error for unknown output")
	}
}
