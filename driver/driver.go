// Package driver runs tengo scripts that move kinematic bodies. A script
// reads the globals t and dt, may keep values in the state map between
// frames, and sets x, y and angle.
package driver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/milk9111/physsync/common"
)

var ErrNoPose = errors.New("driver: script sets none of x, y, angle")

// Driver is one compiled script. It is not safe for concurrent use.
type Driver struct {
	name     string
	compiled *tengo.Compiled
	state    *tengo.Map
	pose     common.Pose
	base     mgl32.Mat4
}

// Compile prepares src for repeated evaluation.
func Compile(name string, src []byte) (*Driver, error) {
	if !declares(src, "x") && !declares(src, "y") && !declares(src, "angle") {
		return nil, fmt.Errorf("%w: %s", ErrNoPose, name)
	}

	script := tengo.NewScript(src)
	_ = script.Add("t", 0.0)
	_ = script.Add("dt", 0.0)
	_ = script.Add("state", map[string]any{})
	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("driver: compile %s: %w", name, err)
	}
	return &Driver{
		name:     name,
		compiled: compiled,
		state:    &tengo.Map{Value: map[string]tengo.Object{}},
		base:     mgl32.Ident4(),
	}, nil
}

// SetBase sets the starting pose. Eval keeps the Z translation and scale of
// base, and globals a script never sets stay at base's values.
func (d *Driver) SetBase(base mgl32.Mat4) {
	if base == (mgl32.Mat4{}) {
		base = mgl32.Ident4()
	}
	d.base = base
	d.pose = common.PoseFromMatrix(base)
}

func (d *Driver) Name() string {
	if d == nil {
		return ""
	}
	return d.name
}

// Eval runs the script for time t and returns the body transform. Globals
// the script leaves unset keep their previous value.
func (d *Driver) Eval(t, dt float64) (mgl32.Mat4, error) {
	if d == nil || d.compiled == nil {
		return mgl32.Mat4{}, fmt.Errorf("driver: nil driver")
	}
	if err := d.compiled.Set("t", t); err != nil {
		return mgl32.Mat4{}, err
	}
	if err := d.compiled.Set("dt", dt); err != nil {
		return mgl32.Mat4{}, err
	}
	if err := d.compiled.Set("state", d.state); err != nil {
		return mgl32.Mat4{}, err
	}
	if err := d.compiled.Run(); err != nil {
		return mgl32.Mat4{}, fmt.Errorf("driver: run %s: %w", d.name, err)
	}

	for name, dst := range map[string]*float64{"x": &d.pose.X, "y": &d.pose.Y, "angle": &d.pose.Angle} {
		if !d.compiled.IsDefined(name) {
			continue
		}
		v := d.compiled.Get(name)
		switch v.ValueType() {
		case "int", "float":
			*dst = v.Float()
		default:
			return mgl32.Mat4{}, fmt.Errorf("driver: %s: %s is %s, want a number", d.name, name, v.ValueType())
		}
	}
	return common.ComposeMatrix(d.pose, d.base), nil
}

// Pose is the pose computed by the last Eval.
func (d *Driver) Pose() common.Pose {
	return d.pose
}

func declares(src []byte, name string) bool {
	for _, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, name); ok {
			after = strings.TrimSpace(after)
			if strings.HasPrefix(after, ":=") || (strings.HasPrefix(after, "=") && !strings.HasPrefix(after, "==")) {
				return true
			}
		}
	}
	return false
}
