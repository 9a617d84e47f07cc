package animation

// Target is a bone whose local pose can be overwritten.
type Target interface {
	SetPosition(p [3]float64)
	SetRotation(q [4]float64)
	// MarkDirty recomposes the local transform and flags the world transform stale.
	MarkDirty()
}

// Rig resolves real bone names to targets and recomputes world transforms.
type Rig interface {
	Lookup(realName string) (Target, bool)
	UpdateWorld()
}

// NameLookup maps a generic rig name to the skeleton's real bone name.
type NameLookup interface {
	Real(generic string) (string, bool)
}

// SampleAndApply poses every bone of data on rig at time t and returns the
// number of bones updated. duration > 0 clamps t to duration; otherwise t is
// used as is. Bones unknown to names or rig, and bones without keyframes, are
// skipped. World transforms are recomputed once, after all local updates.
func SampleAndApply(rig Rig, data *AnimationData, names NameLookup, t, duration float64) int {
	if rig == nil || data == nil {
		return 0
	}
	if duration > 0 && t > duration {
		t = duration
	}

	applied := 0
	for generic, ch := range data.Bones {
		if names == nil {
			break
		}
		name, ok := names.Real(generic)
		if !ok {
			continue
		}
		target, ok := rig.Lookup(name)
		if !ok {
			continue
		}
		if ch.Empty() {
			continue
		}

		if p, ok := ch.Position.At(t); ok {
			target.SetPosition(p)
		}
		if q, ok := ch.Rotation.At(t); ok {
			target.SetRotation(q)
		}
		target.MarkDirty()
		applied++
	}

	rig.UpdateWorld()
	return applied
}
