package avatar

import (
	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/skeleton"
)

// skeletonRig exposes a skeleton's humanoid bones as animation targets.
type skeletonRig struct {
	sk *skeleton.Skeleton
}

func (r skeletonRig) Lookup(name string) (animation.Target, bool) {
	b := r.sk.FindHumanBone(name)
	if b == nil {
		return nil, false
	}
	return b, true
}

func (r skeletonRig) UpdateWorld() { r.sk.UpdateWorld() }
