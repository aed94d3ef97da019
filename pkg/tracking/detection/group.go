package detection

import (
	"image"
	"math"
)

// DefaultGroupEps is the relative tolerance OpenCV uses when merging
// cascade hits.
const DefaultGroupEps = 0.2

// GroupRectangles clusters raw detector hits into candidates. Hits whose
// corners lie within eps of each other (relative to their size) join the
// same cluster; each cluster becomes one averaged candidate whose vote
// count is the number of hits in it. Clusters with threshold or fewer hits
// are dropped, as are small clusters nested inside a stronger one.
//
// The output is ordered by first appearance of each cluster in hits.
func GroupRectangles(hits []image.Rectangle, threshold int, eps float64) []Candidate {
	if len(hits) == 0 {
		return nil
	}

	labels := partition(hits, eps)

	type cluster struct {
		sx, sy, sw, sh int
		n              int
	}
	var order []int
	clusters := make(map[int]*cluster)
	for i, r := range hits {
		c, ok := clusters[labels[i]]
		if !ok {
			c = &cluster{}
			clusters[labels[i]] = c
			order = append(order, labels[i])
		}
		c.sx += r.Min.X
		c.sy += r.Min.Y
		c.sw += r.Dx()
		c.sh += r.Dy()
		c.n++
	}

	var avg []Candidate
	for _, l := range order {
		c := clusters[l]
		if c.n <= threshold {
			continue
		}
		s := 1 / float64(c.n)
		avg = append(avg, Candidate{
			X:     roundInt(float64(c.sx) * s),
			Y:     roundInt(float64(c.sy) * s),
			W:     roundInt(float64(c.sw) * s),
			H:     roundInt(float64(c.sh) * s),
			Votes: c.n,
		})
	}

	var out []Candidate
	for i, r1 := range avg {
		nested := false
		for j, r2 := range avg {
			if i == j {
				continue
			}
			dx := roundInt(float64(r2.W) * eps)
			dy := roundInt(float64(r2.H) * eps)
			inside := r1.X >= r2.X-dx && r1.Y >= r2.Y-dy &&
				r1.X+r1.W <= r2.X+r2.W+dx && r1.Y+r1.H <= r2.Y+r2.H+dy
			if inside && (r2.Votes > max(3, r1.Votes) || r1.Votes < 3) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, r1)
		}
	}
	return out
}

// partition assigns a cluster label to every hit using union-find over the
// similarity relation.
func partition(hits []image.Rectangle, eps float64) []int {
	parent := make([]int, len(hits))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range hits {
		for j := i + 1; j < len(hits); j++ {
			if similar(hits[i], hits[j], eps) {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	labels := make([]int, len(hits))
	for i := range hits {
		labels[i] = find(i)
	}
	return labels
}

func similar(a, b image.Rectangle, eps float64) bool {
	delta := eps * float64(min(a.Dx(), b.Dx())+min(a.Dy(), b.Dy())) * 0.5
	return math.Abs(float64(a.Min.X-b.Min.X)) <= delta &&
		math.Abs(float64(a.Min.Y-b.Min.Y)) <= delta &&
		math.Abs(float64(a.Max.X-b.Max.X)) <= delta &&
		math.Abs(float64(a.Max.Y-b.Max.Y)) <= delta
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
