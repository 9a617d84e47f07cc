package avatar

import (
	"sync"
	"time"

	"vrm-avatar/internal/animation"
	"vrm-avatar/internal/rig"
	"vrm-avatar/internal/skeleton"
)

// SessionID uniquely identifies a loaded avatar.
type SessionID string

// Session is one loaded avatar: its skeleton and the playback context that
// animates it. All access to the skeleton and player goes through mu.
type Session struct {
	ID        SessionID
	Model     string
	CreatedAt time.Time

	mu       sync.Mutex
	skeleton *skeleton.Skeleton
	player   *animation.Player
}

// BonePose is the local and world transform of one bone after sampling.
type BonePose struct {
	Name     string      `json:"name"`
	Humanoid string      `json:"humanoid,omitempty"`
	Position [3]float64  `json:"position"`
	Rotation [4]float64  `json:"rotation"`
	World    [16]float64 `json:"world"`
}

// Pose is the skeleton state produced by one sampling pass.
type Pose struct {
	animation.Frame
	Bones []BonePose `json:"bones"`
}

// SkeletonView is the serialized skeleton as sent to the motion service, plus
// the reverse name table built while walking it.
type SkeletonView struct {
	WorldMatrix [16]float64       `json:"world_matrix"`
	Root        *rig.Node         `json:"root"`
	Names       map[string]string `json:"names"`
	Collisions  []rig.Collision   `json:"collisions"`
}

// AnimationResult describes what happened to a requested animation.
type AnimationResult struct {
	Sequence  uint64  `json:"sequence"`
	Installed bool    `json:"installed"`
	Duration  float64 `json:"duration"`
}
