package skeleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrModelNotFound is returned by loaders when the named asset does not exist.
var ErrModelNotFound = errors.New("skeleton: model not found")

// Definition is the JSON description of a bone hierarchy. Position is
// (x, y, z), Rotation is an (x, y, z, w) quaternion and Scale defaults to 1.
// Humanoid names the humanoid slot the bone fills, if any.
type Definition struct {
	Name     string        `json:"name"`
	Humanoid string        `json:"humanoid,omitempty"`
	Position *[3]float64   `json:"position,omitempty"`
	Rotation *[4]float64   `json:"rotation,omitempty"`
	Scale    *[3]float64   `json:"scale,omitempty"`
	Children []*Definition `json:"children,omitempty"`
}

// Build turns a definition tree into a Skeleton. The definition root becomes
// the model root; its transform is the model placement in the scene.
func Build(def *Definition) (*Skeleton, error) {
	if def == nil {
		return nil, errors.New("skeleton: empty definition")
	}
	humanoid := make(map[string]*Bone)
	var build func(d *Definition, depth int) (*Bone, error)
	build = func(d *Definition, depth int) (*Bone, error) {
		if depth > maxDefinitionDepth {
			return nil, fmt.Errorf("skeleton: definition deeper than %d levels", maxDefinitionDepth)
		}
		b := NewBone(d.Name)
		if d.Position != nil {
			b.SetPosition(*d.Position)
		}
		if d.Rotation != nil {
			b.SetRotation(*d.Rotation)
		}
		if d.Scale != nil {
			b.Scale = *d.Scale
		}
		if d.Humanoid != "" {
			if prev, dup := humanoid[d.Humanoid]; dup {
				return nil, fmt.Errorf("skeleton: humanoid slot %q assigned to %q and %q", d.Humanoid, prev.Name, d.Name)
			}
			humanoid[d.Humanoid] = b
		}
		for _, cd := range d.Children {
			if cd == nil {
				continue
			}
			c, err := build(cd, depth+1)
			if err != nil {
				return nil, err
			}
			b.Add(c)
		}
		return b, nil
	}

	root, err := build(def, 0)
	if err != nil {
		return nil, err
	}
	sk := New(root, humanoid)
	sk.UpdateWorld()
	return sk, nil
}

const maxDefinitionDepth = 128

// Loader is the asset-loader capability: it resolves a model name to a skeleton.
type Loader interface {
	Load(name string) (*Skeleton, error)
}

// FileLoader reads JSON skeleton definitions from Dir. A model "avatar.vrm"
// is looked up as "avatar.vrm.skeleton.json", then "avatar.skeleton.json",
// then the name itself.
type FileLoader struct {
	Dir string
}

// Load implements Loader.
func (l FileLoader) Load(name string) (*Skeleton, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return nil, ErrModelNotFound
	}
	candidates := []string{
		base + ".skeleton.json",
		strings.TrimSuffix(base, filepath.Ext(base)) + ".skeleton.json",
		base,
	}
	for _, c := range candidates {
		data, err := os.ReadFile(filepath.Join(l.Dir, c))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("skeleton: read %s: %w", c, err)
		}
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("skeleton: decode %s: %w", c, err)
		}
		return Build(&def)
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, base)
}
