package zones

// Contains reports whether p lies inside poly, using the classical
// ray-casting crossings test in 64-bit integer arithmetic (coordinates are
// 16-bit mm, so no intermediate product can overflow). A point lying
// exactly on an edge or a vertex is inside, by convention (closed polygon).
func Contains(poly []Point, p Point) bool {
	for _, v := range poly {
		if v == p {
			return true
		}
	}
	n := len(poly)
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		if onSegment(a, b, p) {
			return true
		}
	}

	inside := false
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		if (a.Y > p.Y) == (b.Y > p.Y) {
			continue
		}
		dy := int64(b.Y) - int64(a.Y)
		lhs := (int64(p.X) - int64(a.X)) * dy
		rhs := (int64(b.X) - int64(a.X)) * (int64(p.Y) - int64(a.Y))
		var crosses bool
		if dy > 0 {
			crosses = lhs < rhs
		} else {
			crosses = lhs > rhs
		}
		if crosses {
			inside = !inside
		}
	}
	return inside
}

// onSegment reports whether p is collinear with, and between, a and b.
func onSegment(a, b, p Point) bool {
	cross := (int64(b.X)-int64(a.X))*(int64(p.Y)-int64(a.Y)) - (int64(b.Y)-int64(a.Y))*(int64(p.X)-int64(a.X))
	if cross != 0 {
		return false
	}
	minX, maxX := a.X, b.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := a.Y, b.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// simple reports whether poly is a non-self-intersecting polygon: no pair
// of non-adjacent edges intersects. Adjacent edges sharing an endpoint are
// expected and excluded from the check.
func simple(poly []Point) bool {
	n := len(poly)
	for i := 0; i < n; i++ {
		a1, a2 := poly[i], poly[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i {
				continue
			}
			// Adjacent edges (including the wraparound pair) share an
			// endpoint by construction; skip them.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := poly[j], poly[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return false
			}
		}
	}
	return true
}

func orientation(a, b, c Point) int {
	cross := (int64(b.X)-int64(a.X))*(int64(c.Y)-int64(a.Y)) - (int64(b.Y)-int64(a.Y))*(int64(c.X)-int64(a.X))
	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	default:
		return 0
	}
}

func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	o1 := orientation(p1, p2, p3)
	o2 := orientation(p1, p2, p4)
	o3 := orientation(p3, p4, p1)
	o4 := orientation(p3, p4, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if o2 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	if o3 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if o4 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	return false
}
