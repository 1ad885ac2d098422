package viewport

// Affine is a uniform scale followed by an offset: p -> Scale*p + Offset.
type Affine struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// Identity transform
var Identity = Affine{Scale: 1}

func (a Affine) Apply(p Point) Point {
	return Point{X: a.Scale*p.X + a.OffsetX, Y: a.Scale*p.Y + a.OffsetY}
}

// Compose returns parent * local: local is applied first.
func Compose(parent, local Affine) Affine {
	return Affine{
		Scale:   parent.Scale * local.Scale,
		OffsetX: parent.Scale*local.OffsetX + parent.OffsetX,
		OffsetY: parent.Scale*local.OffsetY + parent.OffsetY,
	}
}
