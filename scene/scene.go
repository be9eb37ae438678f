// Package scene loads YAML descriptions of bodies, shapes and constraints
// and turns them into worker requests.
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/milk9111/physsync/config"
	"github.com/milk9111/physsync/driver"
	"github.com/milk9111/physsync/engine"
	"github.com/milk9111/physsync/worker"
)

var (
	ErrInvalid   = errors.New("scene: invalid")
	ErrNotOnDisk = errors.New("scene: not a file on disk")
)

type Scene struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Preset      string           `yaml:"preset"`
	Bodies      []BodySpec       `yaml:"bodies"`
	Constraints []ConstraintSpec `yaml:"constraints"`

	dir string
}

type BodySpec struct {
	ID             string      `yaml:"id"`
	Type           string      `yaml:"type"`
	Position       [3]float32  `yaml:"position"`
	Angle          float32     `yaml:"angle"`
	Velocity       *[3]float32 `yaml:"velocity"`
	Mass           *float64    `yaml:"mass"`
	Friction       *float64    `yaml:"friction"`
	Restitution    *float64    `yaml:"restitution"`
	LinearDamping  *float64    `yaml:"linear_damping"`
	AngularDamping *float64    `yaml:"angular_damping"`
	Gravity        *[3]float32 `yaml:"gravity"`
	CollisionGroup *uint32     `yaml:"collision_group"`
	CollisionMask  *uint32     `yaml:"collision_mask"`
	Sensor         *bool       `yaml:"sensor"`
	Shapes         []ShapeSpec `yaml:"shapes"`
	// Driver names a tengo script that moves a kinematic body.
	Driver string `yaml:"driver"`
}

type ShapeSpec struct {
	ID          string     `yaml:"id"`
	Type        string     `yaml:"type"`
	HalfExtents [3]float32 `yaml:"half_extents"`
	Radius      float32    `yaml:"radius"`
	Height      float32    `yaml:"height"`
	Offset      [3]float32 `yaml:"offset"`
	Margin      float32    `yaml:"margin"`
	Vertices    []float32  `yaml:"vertices"`
	Indexes     []int      `yaml:"indexes"`
}

type ConstraintSpec struct {
	ID                string     `yaml:"id"`
	Type              string     `yaml:"type"`
	Body              string     `yaml:"body"`
	Target            string     `yaml:"target"`
	Pivot             [3]float32 `yaml:"pivot"`
	TargetPivot       [3]float32 `yaml:"target_pivot"`
	Axis              [3]float32 `yaml:"axis"`
	RestLength        float64    `yaml:"rest_length"`
	Stiffness         float64    `yaml:"stiffness"`
	Damping           float64    `yaml:"damping"`
	Min               float64    `yaml:"min"`
	Max               float64    `yaml:"max"`
	MaxForce          float64    `yaml:"max_force"`
	DisableCollisions bool       `yaml:"disable_collisions"`
}

// Load reads a scene from disk, or one of the embedded scenes by name.
func Load(name string) (*Scene, error) {
	data, err := ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", name, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", name, err)
	}
	if _, statErr := os.Stat(name); statErr == nil {
		s.dir = filepath.Dir(name)
	}
	return s, nil
}

// Parse decodes and validates a scene. Shapes without an id are named after
// their body and position.
func Parse(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scene: unmarshal: %w", err)
	}
	for i := range s.Bodies {
		b := &s.Bodies[i]
		for j := range b.Shapes {
			if b.Shapes[j].ID == "" {
				b.Shapes[j].ID = fmt.Sprintf("%s-shape-%d", b.ID, j)
			}
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scene) Validate() error {
	var errs []error
	if s.Preset != "" && config.GetPreset(s.Preset) == nil {
		errs = append(errs, fmt.Errorf("%w: unknown preset %q", ErrInvalid, s.Preset))
	}
	bodies := make(map[string]bool, len(s.Bodies))
	shapes := make(map[string]bool)
	for _, b := range s.Bodies {
		if b.ID == "" {
			errs = append(errs, fmt.Errorf("%w: body without id", ErrInvalid))
			continue
		}
		if bodies[b.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate body %q", ErrInvalid, b.ID))
		}
		bodies[b.ID] = true
		if _, err := b.options(); err != nil {
			errs = append(errs, fmt.Errorf("%w: body %q: %v", ErrInvalid, b.ID, err))
		}
		for _, sh := range b.Shapes {
			if shapes[sh.ID] {
				errs = append(errs, fmt.Errorf("%w: duplicate shape group %q", ErrInvalid, sh.ID))
			}
			shapes[sh.ID] = true
			if _, err := engine.ParseShapeType(sh.Type); err != nil {
				errs = append(errs, fmt.Errorf("%w: shape %q: %v", ErrInvalid, sh.ID, err))
			}
		}
	}
	constraints := make(map[string]bool)
	for _, c := range s.Constraints {
		if c.ID == "" || constraints[c.ID] {
			errs = append(errs, fmt.Errorf("%w: missing or duplicate constraint id %q", ErrInvalid, c.ID))
		}
		constraints[c.ID] = true
		if _, err := engine.ParseConstraintType(c.Type); err != nil {
			errs = append(errs, fmt.Errorf("%w: constraint %q: %v", ErrInvalid, c.ID, err))
		}
		if c.Body != "" && c.Body == c.Target {
			errs = append(errs, fmt.Errorf("%w: constraint %q joins body %q to itself", ErrInvalid, c.ID, c.Body))
		}
		for _, id := range []string{c.Body, c.Target} {
			if !bodies[id] {
				errs = append(errs, fmt.Errorf("%w: constraint %q references unknown body %q", ErrInvalid, c.ID, id))
			}
		}
	}
	return errors.Join(errs...)
}

// Config returns the defaults with the scene's preset applied.
func (s *Scene) Config() *config.Config {
	cfg := config.Default()
	if s.Preset != "" {
		config.Apply(cfg, s.Preset)
	}
	return cfg
}

// BodyIDs lists the bodies in declaration order.
func (s *Scene) BodyIDs() []string {
	ids := make([]string, 0, len(s.Bodies))
	for _, b := range s.Bodies {
		ids = append(ids, b.ID)
	}
	return ids
}

// Messages returns the requests that build the scene: each body followed by
// its shapes and initial velocity, then the constraints.
func (s *Scene) Messages() ([]worker.Message, error) {
	var msgs []worker.Message
	for _, b := range s.Bodies {
		opts, err := b.options()
		if err != nil {
			return nil, fmt.Errorf("scene: body %s: %w", b.ID, err)
		}
		msgs = append(msgs, worker.AddBody{ID: b.ID, Matrix: b.Matrix(), Options: opts})
		for _, sh := range b.Shapes {
			typ, err := engine.ParseShapeType(sh.Type)
			if err != nil {
				return nil, fmt.Errorf("scene: shape %s: %w", sh.ID, err)
			}
			msgs = append(msgs, worker.AddShapes{
				BodyID:   b.ID,
				GroupID:  sh.ID,
				Geometry: engine.Geometry{Vertices: sh.Vertices, Indexes: sh.Indexes},
				Options: engine.ShapeOptions{
					Type:        typ,
					HalfExtents: mgl32.Vec3(sh.HalfExtents),
					Radius:      sh.Radius,
					Height:      sh.Height,
					Offset:      mgl32.Vec3(sh.Offset),
					Margin:      sh.Margin,
				},
			})
		}
		if b.Velocity != nil {
			msgs = append(msgs, worker.SetLinearVelocity{ID: b.ID, Velocity: mgl32.Vec3(*b.Velocity)})
		}
	}
	for _, c := range s.Constraints {
		typ, err := engine.ParseConstraintType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("scene: constraint %s: %w", c.ID, err)
		}
		msgs = append(msgs, worker.AddConstraint{
			ID:       c.ID,
			BodyID:   c.Body,
			TargetID: c.Target,
			Options: engine.ConstraintOptions{
				Type:              typ,
				Pivot:             mgl32.Vec3(c.Pivot),
				TargetPivot:       mgl32.Vec3(c.TargetPivot),
				Axis:              mgl32.Vec3(c.Axis),
				RestLength:        c.RestLength,
				Stiffness:         c.Stiffness,
				Damping:           c.Damping,
				Min:               c.Min,
				Max:               c.Max,
				MaxForce:          c.MaxForce,
				DisableCollisions: c.DisableCollisions,
			},
		})
	}
	return msgs, nil
}

// Drivers compiles the driver script of every body that names one.
func (s *Scene) Drivers() (map[string]*driver.Driver, error) {
	out := make(map[string]*driver.Driver)
	for _, b := range s.Bodies {
		if b.Driver == "" {
			continue
		}
		src, err := ReadScript(s.dir, b.Driver)
		if err != nil {
			return nil, fmt.Errorf("scene: driver %s for %s: %w", b.Driver, b.ID, err)
		}
		d, err := driver.Compile(b.Driver, src)
		if err != nil {
			return nil, err
		}
		d.SetBase(b.Matrix())
		out[b.ID] = d
	}
	return out, nil
}

// Matrix is the body's initial transform.
func (b BodySpec) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(b.Position[0], b.Position[1], b.Position[2]).
		Mul4(mgl32.HomogRotate3DZ(b.Angle))
}

func (b BodySpec) options() (engine.BodyOptions, error) {
	typ, err := engine.ParseBodyType(b.Type)
	if err != nil {
		return engine.BodyOptions{}, err
	}
	opts := engine.BodyOptions{
		Type:             &typ,
		Mass:             b.Mass,
		Friction:         b.Friction,
		Restitution:      b.Restitution,
		LinearDamping:    b.LinearDamping,
		AngularDamping:   b.AngularDamping,
		CollisionGroup:   b.CollisionGroup,
		CollisionMask:    b.CollisionMask,
		DisableCollision: b.Sensor,
	}
	if b.Gravity != nil {
		g := mgl32.Vec3(*b.Gravity)
		opts.Gravity = &g
	}
	if b.Driver != "" && typ == engine.BodyDynamic {
		return opts, fmt.Errorf("driver %s on a dynamic body", b.Driver)
	}
	return opts, opts.Validate()
}
