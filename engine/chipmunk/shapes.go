package chipmunk

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/physsync/engine"
)

// AttachShapes converts geom into cp shapes on the body.
func (w *World) AttachShapes(bh engine.Handle, geom engine.Geometry, opts engine.ShapeOptions) (engine.Handle, error) {
	info, err := w.body(bh)
	if err != nil {
		return 0, err
	}
	built, err := buildShapes(info.body, geom, opts)
	if err != nil {
		return 0, err
	}

	group := &groupInfo{body: bh}
	for _, s := range built {
		applyMaterial(s.shape, info.opts)
		w.space.AddShape(s.shape)
		group.shapes = append(group.shapes, s.shape)
		group.unitMoments = append(group.unitMoments, s.unitMoment)
	}
	gh := w.groups.Insert(group)
	info.groups = append(info.groups, gh)
	w.applyDynamics(info)
	return gh, nil
}

// DetachShapes removes every shape of the group from the space.
func (w *World) DetachShapes(gh engine.Handle) error {
	group, ok := w.groups.Get(gh)
	if !ok {
		return fmt.Errorf("%w: shape group %v", engine.ErrUnknownHandle, gh)
	}
	for _, shape := range group.shapes {
		w.space.RemoveShape(shape)
	}
	w.groups.Remove(gh)
	if info, ok := w.bodies.Get(group.body); ok {
		info.groups = removeHandle(info.groups, gh)
		w.applyDynamics(info)
	}
	return nil
}

func applyMaterial(shape *cp.Shape, opts engine.BodyOptions) {
	friction := engine.DefaultFriction
	if opts.Friction != nil {
		friction = *opts.Friction
	}
	shape.SetFriction(friction)
	if opts.Restitution != nil {
		shape.SetElasticity(*opts.Restitution)
	}
	group, mask := uint32(engine.DefaultCollisionGroup), uint32(engine.DefaultCollisionMask)
	if opts.CollisionGroup != nil {
		group = *opts.CollisionGroup
	}
	if opts.CollisionMask != nil {
		mask = *opts.CollisionMask
	}
	shape.SetFilter(cp.NewShapeFilter(cp.NO_GROUP, uint(group), uint(mask)))
	shape.SetSensor(opts.DisableCollision != nil && *opts.DisableCollision)
	shape.SetCollisionType(collisionTypeBody)
}

type builtShape struct {
	shape      *cp.Shape
	unitMoment float64
}

// buildShapes lays shapes out in body space. Dimensions left at zero are
// fitted to the bounds of the geometry; with neither the request is
// malformed.
func buildShapes(body *cp.Body, geom engine.Geometry, opts engine.ShapeOptions) ([]builtShape, error) {
	typ := opts.Type
	if typ == "" {
		typ = engine.ShapeBox
	}
	margin := float64(opts.Margin)

	switch typ {
	case engine.ShapeHull:
		hull, err := hullShape(body, project(geom.Points(), opts.Offset), margin)
		if err != nil {
			return nil, err
		}
		return []builtShape{hull}, nil
	case engine.ShapeMesh:
		return meshShapes(body, geom, opts.Offset, margin)
	}

	lo, hi, fitted := geom.Bounds()
	center := opts.Offset
	if fitted {
		center = center.Add(lo.Add(hi).Mul(0.5))
	}
	half := hi.Sub(lo).Mul(0.5)

	switch typ {
	case engine.ShapeBox, engine.ShapeCylinder:
		hx, hy := float64(opts.HalfExtents[0]), float64(opts.HalfExtents[1])
		if typ == engine.ShapeCylinder {
			hx, hy = float64(opts.Radius), float64(opts.Height)/2
		}
		if hx <= 0 || hy <= 0 {
			if !fitted {
				return nil, fmt.Errorf("%w: %s without dimensions or vertices", engine.ErrMalformedGeometry, typ)
			}
			if hx <= 0 {
				hx = float64(half[0])
			}
			if hy <= 0 {
				hy = float64(half[1])
			}
		}
		if hx <= 0 || hy <= 0 {
			return nil, fmt.Errorf("%w: degenerate %s", engine.ErrMalformedGeometry, typ)
		}
		c := cp.Vector{X: float64(center[0]), Y: float64(center[1])}
		bb := cp.BB{L: c.X - hx, B: c.Y - hy, R: c.X + hx, T: c.Y + hy}
		shape := cp.NewBox2(body, bb, margin)
		unit := cp.MomentForBox(1, 2*hx, 2*hy) + c.LengthSq()
		return []builtShape{{shape: shape, unitMoment: unit}}, nil

	case engine.ShapeSphere:
		r := float64(opts.Radius)
		if r <= 0 {
			if !fitted {
				return nil, fmt.Errorf("%w: sphere without radius or vertices", engine.ErrMalformedGeometry)
			}
			r = float64(max(half[0], half[1]))
		}
		if r <= 0 {
			return nil, fmt.Errorf("%w: degenerate sphere", engine.ErrMalformedGeometry)
		}
		c := cp.Vector{X: float64(center[0]), Y: float64(center[1])}
		return []builtShape{{
			shape:      cp.NewCircle(body, r, c),
			unitMoment: cp.MomentForCircle(1, 0, r, c),
		}}, nil

	case engine.ShapeCapsule:
		r, h := float64(opts.Radius), float64(opts.Height)
		if r <= 0 {
			if !fitted {
				return nil, fmt.Errorf("%w: capsule without radius or vertices", engine.ErrMalformedGeometry)
			}
			r = float64(half[0])
		}
		if h <= 0 && fitted {
			h = math.Max(0, 2*float64(half[1])-2*r)
		}
		if r <= 0 {
			return nil, fmt.Errorf("%w: degenerate capsule", engine.ErrMalformedGeometry)
		}
		c := cp.Vector{X: float64(center[0]), Y: float64(center[1])}
		if h <= 0 {
			return []builtShape{{
				shape:      cp.NewCircle(body, r, c),
				unitMoment: cp.MomentForCircle(1, 0, r, c),
			}}, nil
		}
		a := cp.Vector{X: c.X, Y: c.Y - h/2}
		b := cp.Vector{X: c.X, Y: c.Y + h/2}
		return []builtShape{{
			shape:      cp.NewSegment(body, a, b, r),
			unitMoment: cp.MomentForBox(1, 2*r, h+2*r) + c.LengthSq(),
		}}, nil

	case engine.ShapeCone:
		r, h := float64(opts.Radius), float64(opts.Height)
		if r <= 0 || h <= 0 {
			if !fitted {
				return nil, fmt.Errorf("%w: cone without dimensions or vertices", engine.ErrMalformedGeometry)
			}
			if r <= 0 {
				r = float64(half[0])
			}
			if h <= 0 {
				h = 2 * float64(half[1])
			}
		}
		if r <= 0 || h <= 0 {
			return nil, fmt.Errorf("%w: degenerate cone", engine.ErrMalformedGeometry)
		}
		c := cp.Vector{X: float64(center[0]), Y: float64(center[1])}
		tri := []cp.Vector{
			{X: c.X - r, Y: c.Y - h/2},
			{X: c.X + r, Y: c.Y - h/2},
			{X: c.X, Y: c.Y + h/2},
		}
		return []builtShape{polyShape(body, tri, margin)}, nil
	}
	return nil, fmt.Errorf("%w: shape type %q", engine.ErrInvalidOption, typ)
}

func meshShapes(body *cp.Body, geom engine.Geometry, offset mgl32.Vec3, margin float64) ([]builtShape, error) {
	pts := project(geom.Points(), offset)
	idx := geom.Indexes
	if len(idx) == 0 {
		idx = make([]int, len(pts)-len(pts)%3)
		for i := range idx {
			idx[i] = i
		}
	}
	var out []builtShape
	for i := 0; i+2 < len(idx); i += 3 {
		a, b, c := idx[i], idx[i+1], idx[i+2]
		if a < 0 || b < 0 || c < 0 || a >= len(pts) || b >= len(pts) || c >= len(pts) {
			return nil, fmt.Errorf("%w: triangle index out of range", engine.ErrMalformedGeometry)
		}
		tri := []cp.Vector{pts[a], pts[b], pts[c]}
		switch area := cross(tri[0], tri[1], tri[2]); {
		case math.Abs(area) < 1e-9:
			continue
		case area < 0:
			tri[1], tri[2] = tri[2], tri[1]
		}
		out = append(out, polyShape(body, tri, margin))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: mesh has no usable triangles", engine.ErrMalformedGeometry)
	}
	return out, nil
}

// polyShape expects counter-clockwise convex vertices.
func polyShape(body *cp.Body, verts []cp.Vector, margin float64) builtShape {
	return builtShape{
		shape:      cp.NewPolyShapeRaw(body, len(verts), verts, margin),
		unitMoment: cp.MomentForPoly(1, len(verts), verts, cp.Vector{}, margin),
	}
}

func project(pts []mgl32.Vec3, offset mgl32.Vec3) []cp.Vector {
	out := make([]cp.Vector, len(pts))
	for i, p := range pts {
		out[i] = cp.Vector{X: float64(p[0] + offset[0]), Y: float64(p[1] + offset[1])}
	}
	return out
}

func cross(o, a, b cp.Vector) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// hullShape lets cp reduce pts to their convex hull. The moment comes from
// the vertices cp kept.
func hullShape(body *cp.Body, pts []cp.Vector, margin float64) (builtShape, error) {
	if len(pts) < 3 {
		return builtShape{}, fmt.Errorf("%w: hull needs three non-collinear points", engine.ErrMalformedGeometry)
	}
	shape := cp.NewPolyShape(body, len(pts), pts, cp.NewTransformIdentity(), margin)
	poly, ok := shape.Class.(*cp.PolyShape)
	if !ok || poly.Count() < 3 {
		return builtShape{}, fmt.Errorf("%w: hull needs three non-collinear points", engine.ErrMalformedGeometry)
	}
	verts := make([]cp.Vector, poly.Count())
	for i := range verts {
		verts[i] = poly.Vert(i)
	}
	if math.Abs(cp.AreaForPoly(len(verts), verts, 0)) < 1e-9 {
		return builtShape{}, fmt.Errorf("%w: degenerate hull", engine.ErrMalformedGeometry)
	}
	return builtShape{
		shape:      shape,
		unitMoment: cp.MomentForPoly(1, len(verts), verts, cp.Vector{}, margin),
	}, nil
}

func removeHandle(hs []engine.Handle, h engine.Handle) []engine.Handle {
	for i, v := range hs {
		if v == h {
			return append(hs[:i], hs[i+1:]...)
		}
	}
	return hs
}
