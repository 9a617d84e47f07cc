package skeleton

import "github.com/go-gl/mathgl/mgl64"

// Bone is one node of a skeleton hierarchy. Position, Rotation and Scale form
// the local transform relative to Parent; the world matrix is cached and only
// recomputed by UpdateWorldMatrix, RefreshWorld or Skeleton.UpdateWorld.
type Bone struct {
	Name     string
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3

	Parent   *Bone
	Children []*Bone

	local      mgl64.Mat4
	world      mgl64.Mat4
	worldDirty bool
}

// NewBone returns a bone with an identity local transform.
func NewBone(name string) *Bone {
	return &Bone{
		Name:       name,
		Rotation:   mgl64.QuatIdent(),
		Scale:      mgl64.Vec3{1, 1, 1},
		local:      mgl64.Ident4(),
		world:      mgl64.Ident4(),
		worldDirty: true,
	}
}

// Add attaches child under b, detaching it from any previous parent.
func (b *Bone) Add(child *Bone) {
	if child == nil || child == b {
		return
	}
	if p := child.Parent; p != nil {
		for i, c := range p.Children {
			if c == child {
				p.Children = append(p.Children[:i], p.Children[i+1:]...)
				break
			}
		}
	}
	child.Parent = b
	b.Children = append(b.Children, child)
	child.worldDirty = true
}

// SetPosition sets the local position from an (x, y, z) triple.
func (b *Bone) SetPosition(p [3]float64) {
	b.Position = mgl64.Vec3(p)
}

// SetRotation sets the local rotation from an (x, y, z, w) quaternion.
func (b *Bone) SetRotation(q [4]float64) {
	b.Rotation = mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}
}

// RotationArray returns the local rotation in (x, y, z, w) order.
func (b *Bone) RotationArray() [4]float64 {
	return [4]float64{b.Rotation.V[0], b.Rotation.V[1], b.Rotation.V[2], b.Rotation.W}
}

// UpdateMatrix composes the local matrix from position, rotation and scale.
func (b *Bone) UpdateMatrix() {
	b.local = mgl64.Translate3D(b.Position[0], b.Position[1], b.Position[2]).
		Mul4(b.Rotation.Mat4()).
		Mul4(mgl64.Scale3D(b.Scale[0], b.Scale[1], b.Scale[2]))
	b.worldDirty = true
}

// MarkDirty flags the cached world matrix as stale after a local update.
func (b *Bone) MarkDirty() {
	b.UpdateMatrix()
}

// WorldDirty reports whether the world matrix needs recomputation.
func (b *Bone) WorldDirty() bool { return b.worldDirty }

// LocalMatrix returns the last composed local matrix.
func (b *Bone) LocalMatrix() mgl64.Mat4 { return b.local }

// WorldMatrix returns the cached world matrix as 16 column-major floats.
// Call RefreshWorld first when ancestors may have moved.
func (b *Bone) WorldMatrix() mgl64.Mat4 { return b.world }

func (b *Bone) computeWorld(parent *Bone) {
	b.UpdateMatrix()
	if parent != nil {
		b.world = parent.world.Mul4(b.local)
	} else {
		b.world = b.local
	}
	b.worldDirty = false
}

// RefreshWorld recomputes the world matrix of b from its local transform and
// its whole ancestor chain, top down. Children are not touched. A corrupted
// parent cycle is cut at the first repeated bone.
func (b *Bone) RefreshWorld() {
	const maxAncestors = 256

	chain := []*Bone{b}
	seen := map[*Bone]bool{b: true}
	for p := b.Parent; p != nil && len(chain) < maxAncestors && !seen[p]; p = p.Parent {
		seen[p] = true
		chain = append(chain, p)
	}

	top := chain[len(chain)-1]
	topParent := top.Parent
	if seen[topParent] {
		topParent = nil
	}
	top.computeWorld(topParent)
	for i := len(chain) - 2; i >= 0; i-- {
		chain[i].computeWorld(chain[i+1])
	}
}

// UpdateWorldMatrix recomputes b and its descendants. Bones already visited in
// this pass are skipped so a malformed child cycle cannot recurse forever.
func (b *Bone) UpdateWorldMatrix() {
	b.updateWorld(make(map[*Bone]bool))
}

func (b *Bone) updateWorld(visited map[*Bone]bool) {
	if visited[b] {
		return
	}
	visited[b] = true
	b.computeWorld(b.Parent)
	for _, c := range b.Children {
		if c == nil {
			continue
		}
		c.updateWorld(visited)
	}
}
