package detection

import (
	"context"
	"errors"
	"image"
	"testing"
)

func TestCandidate_Center(t *testing.T) {
	tests := []struct {
		name    string
		c       Candidate
		expectX float64
		expectY float64
	}{
		{"origin", Candidate{X: 0, Y: 0, W: 40, H: 40}, 20, 20},
		{"odd size", Candidate{X: 10, Y: 20, W: 5, H: 7}, 12.5, 23.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.c.Center()
			if x != tc.expectX || y != tc.expectY {
				t.Errorf("Center: got (%.1f, %.1f), want (%.1f, %.1f)", x, y, tc.expectX, tc.expectY)
			}
		})
	}
}

func TestCandidate_Offset(t *testing.T) {
	c := Candidate{X: 5, Y: 6, W: 10, H: 12, Votes: 3}.Offset(image.Pt(100, 50))
	want := Candidate{X: 105, Y: 56, W: 10, H: 12, Votes: 3}
	if c != want {
		t.Errorf("Offset: got %+v, want %+v", c, want)
	}
	if got := c.Rect(); got != image.Rect(105, 56, 115, 68) {
		t.Errorf("Rect: got %v", got)
	}
}

func TestFilter(t *testing.T) {
	cands := []Candidate{{Votes: 2}, {Votes: 6}, {Votes: 5}, {Votes: 9}, {Votes: 4}}
	got := Filter(cands, 5)
	if len(got) != 2 || got[0].Votes != 6 || got[1].Votes != 9 {
		t.Errorf("Filter: got %+v", got)
	}

	// A candidate at the threshold is dropped here and by GroupRectangles.
	hits := make([]image.Rectangle, 5)
	for i := range hits {
		hits[i] = image.Rect(10, 10, 50, 50)
	}
	if got := GroupRectangles(hits, 5, DefaultGroupEps); len(got) != 0 {
		t.Errorf("GroupRectangles with 5 hits: got %+v", got)
	}
	if got := Filter([]Candidate{{Votes: 5}}, 5); len(got) != 0 {
		t.Errorf("Filter at threshold: got %+v", got)
	}
	if Filter(nil, 0) != nil {
		t.Error("Filter(nil) should be nil")
	}
}

func TestGroupRectangles(t *testing.T) {
	t.Run("merges overlapping hits", func(t *testing.T) {
		hits := []image.Rectangle{
			image.Rect(100, 100, 140, 140),
			image.Rect(101, 99, 141, 139),
			image.Rect(99, 101, 139, 141),
			image.Rect(10, 10, 30, 30),
		}
		got := GroupRectangles(hits, 0, DefaultGroupEps)
		if len(got) != 2 {
			t.Fatalf("expected 2 clusters, got %d: %+v", len(got), got)
		}
		if got[0].Votes != 3 {
			t.Errorf("first cluster votes: got %d, want 3", got[0].Votes)
		}
		if got[0].X != 100 || got[0].Y != 100 || got[0].W != 40 || got[0].H != 40 {
			t.Errorf("first cluster rect: got %+v", got[0])
		}
		if got[1].Votes != 1 {
			t.Errorf("second cluster votes: got %d, want 1", got[1].Votes)
		}
	})

	t.Run("drops weak clusters", func(t *testing.T) {
		hits := []image.Rectangle{
			image.Rect(100, 100, 140, 140),
			image.Rect(100, 100, 140, 140),
			image.Rect(10, 10, 30, 30),
		}
		got := GroupRectangles(hits, 1, DefaultGroupEps)
		if len(got) != 1 || got[0].Votes != 2 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("drops nested clusters", func(t *testing.T) {
		var hits []image.Rectangle
		for i := 0; i < 5; i++ {
			hits = append(hits, image.Rect(100, 100, 200, 200))
		}
		hits = append(hits, image.Rect(120, 120, 140, 140))
		got := GroupRectangles(hits, 0, DefaultGroupEps)
		if len(got) != 1 || got[0].Votes != 5 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := GroupRectangles(nil, 0, DefaultGroupEps); got != nil {
			t.Errorf("got %+v", got)
		}
	})
}

func TestScripted(t *testing.T) {
	ctx := context.Background()
	face := Candidate{X: 1, Y: 2, W: 3, H: 4, Votes: 5}
	d := Repeat(2, face)

	for i := 0; i < 2; i++ {
		got, err := d.Detect(ctx, nil, image.Rect(0, 0, 10, 10))
		if err != nil || len(got) != 1 {
			t.Fatalf("call %d: got %v, %v", i, got, err)
		}
	}
	got, _ := d.Detect(ctx, nil, image.Rect(0, 0, 10, 10))
	if len(got) != 0 {
		t.Errorf("after script: got %v", got)
	}
	if n := len(d.ROIs()); n != 3 {
		t.Errorf("ROIs: got %d, want 3", n)
	}

	boom := errors.New("boom")
	d.FailWith(boom)
	if _, err := d.Detect(ctx, nil, image.Rectangle{}); !errors.Is(err, boom) {
		t.Errorf("expected scripted error, got %v", err)
	}
}
