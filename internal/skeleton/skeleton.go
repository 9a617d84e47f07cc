package skeleton

import (
	"errors"
	"sort"
)

// HipsSlot is the humanoid slot the skeleton walk starts from.
const HipsSlot = "hips"

// ErrNoRootBone is returned when a skeleton has no bone in the hips slot.
var ErrNoRootBone = errors.New("skeleton: root bone not found")

// Skeleton is a loaded avatar: the model root node plus the humanoid slot table
// mapping slot names ("hips", "leftUpperArm") to bones of the hierarchy.
type Skeleton struct {
	Root     *Bone
	humanoid map[string]*Bone
	byName   map[string]*Bone
}

// New returns a skeleton rooted at root. humanoid may be nil.
func New(root *Bone, humanoid map[string]*Bone) *Skeleton {
	h := make(map[string]*Bone, len(humanoid))
	for slot, b := range humanoid {
		if b != nil {
			h[slot] = b
		}
	}
	sk := &Skeleton{Root: root, humanoid: h, byName: make(map[string]*Bone, len(h))}
	// sorted slots make the winner of a shared name deterministic
	for _, slot := range sk.Slots() {
		b := h[slot]
		if _, taken := sk.byName[b.Name]; !taken {
			sk.byName[b.Name] = b
		}
	}
	return sk
}

// HumanBone returns the bone assigned to a humanoid slot, or nil.
func (s *Skeleton) HumanBone(slot string) *Bone {
	return s.humanoid[slot]
}

// RootBone returns the hips bone or ErrNoRootBone.
func (s *Skeleton) RootBone() (*Bone, error) {
	if b := s.HumanBone(HipsSlot); b != nil {
		return b, nil
	}
	return nil, ErrNoRootBone
}

// FindHumanBone returns the humanoid bone whose real name is name. Bones that
// are not assigned to a humanoid slot are never returned. Names are indexed
// when the skeleton is built; when two slots share a name the alphabetically
// first slot wins.
func (s *Skeleton) FindHumanBone(name string) *Bone {
	return s.byName[name]
}

// Slots returns the assigned humanoid slot names in sorted order.
func (s *Skeleton) Slots() []string {
	slots := make([]string, 0, len(s.humanoid))
	for slot := range s.humanoid {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

// UpdateWorld recomputes every world matrix below the model root in one pass.
func (s *Skeleton) UpdateWorld() {
	if s.Root != nil {
		s.Root.UpdateWorldMatrix()
	}
}

// Bones returns every bone reachable from the root in pre-order, each once.
func (s *Skeleton) Bones() []*Bone {
	var out []*Bone
	if s.Root == nil {
		return out
	}
	seen := make(map[*Bone]bool)
	var visit func(b *Bone)
	visit = func(b *Bone) {
		if b == nil || seen[b] {
			return
		}
		seen[b] = true
		out = append(out, b)
		for _, c := range b.Children {
			visit(c)
		}
	}
	visit(s.Root)
	return out
}
