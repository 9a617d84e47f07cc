// Package animation holds keyframe animation data keyed by generic rig bone
// names, the step sampler that applies it to a skeleton, and the Player that
// drives looping playback.
package animation

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Vec3 is a position keyframe value (x, y, z).
type Vec3 [3]float64

// Quat is a rotation keyframe value (x, y, z, w).
type Quat [4]float64

func (Vec3) width() int { return 3 }
func (Quat) width() int { return 4 }

type keyValue interface {
	Vec3 | Quat
	width() int
}

// Keyframe is one timestamped value. Time is in seconds.
type Keyframe[V keyValue] struct {
	Time  float64
	Value V
}

// Channel is a keyframe track sorted by ascending Time. On the wire it is an
// object keyed by timestamp strings: {"0": [0,0,0], "0.5": [0,1,0]}.
type Channel[V keyValue] []Keyframe[V]

// UnmarshalJSON decodes a timestamp-keyed object. An array is read with its
// indices as timestamps. Keys that are not finite numbers and values with too
// few components are dropped; a channel of any other JSON type decodes empty.
// Keys naming the same time ("1", "1.0") keep the lexically smallest one.
func (c *Channel[V]) UnmarshalJSON(b []byte) error {
	raw, ok := channelEntries(b)
	if !ok {
		*c = nil
		return nil
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var zero V
	out := make(Channel[V], 0, len(raw))
	for _, key := range keys {
		t, err := strconv.ParseFloat(strings.TrimSpace(key), 64)
		if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
			continue
		}
		msg := raw[key]
		var nums []float64
		if err := json.Unmarshal(msg, &nums); err != nil || len(nums) < zero.width() {
			continue
		}
		var v V
		if err := json.Unmarshal(msg, &v); err != nil {
			continue
		}
		out = append(out, Keyframe[V]{Time: t, Value: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	deduped := out[:0]
	for i, k := range out {
		if i > 0 && k.Time == deduped[len(deduped)-1].Time {
			continue
		}
		deduped = append(deduped, k)
	}
	*c = deduped
	return nil
}

// channelEntries reads a channel as key -> raw value pairs.
func channelEntries(b []byte) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err == nil {
		return obj, obj != nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return nil, false
	}
	obj = make(map[string]json.RawMessage, len(arr))
	for i, msg := range arr {
		obj[strconv.Itoa(i)] = msg
	}
	return obj, true
}

// MarshalJSON encodes the channel back into its timestamp-keyed form.
func (c Channel[V]) MarshalJSON() ([]byte, error) {
	m := make(map[string]V, len(c))
	for _, k := range c {
		m[strconv.FormatFloat(k.Time, 'f', -1, 64)] = k.Value
	}
	return json.Marshal(m)
}

// At returns the value of the latest keyframe at or before t. When t precedes
// every keyframe the first one is used. ok is false for an empty channel.
func (c Channel[V]) At(t float64) (v V, ok bool) {
	if len(c) == 0 {
		return v, false
	}
	i := sort.Search(len(c), func(i int) bool { return c[i].Time > t })
	if i == 0 {
		return c[0].Value, true
	}
	return c[i-1].Value, true
}

// Last returns the largest timestamp, or 0 for an empty channel.
func (c Channel[V]) Last() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Time
}

// BoneChannels is the animation of one bone; either channel may be absent.
type BoneChannels struct {
	Position Channel[Vec3] `json:"position,omitempty"`
	Rotation Channel[Quat] `json:"rotation,omitempty"`
}

// UnmarshalJSON decodes a bone's channels. A bone that is not a JSON object
// decodes with no keyframes, so one malformed bone never fails the payload.
func (b *BoneChannels) UnmarshalJSON(data []byte) error {
	var raw struct {
		Position Channel[Vec3] `json:"position"`
		Rotation Channel[Quat] `json:"rotation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		*b = BoneChannels{}
		return nil
	}
	b.Position, b.Rotation = raw.Position, raw.Rotation
	return nil
}

// Empty reports whether the bone carries no keyframes at all.
func (b BoneChannels) Empty() bool {
	return len(b.Position) == 0 && len(b.Rotation) == 0
}

// AnimationData maps generic rig bone names to their channels.
type AnimationData struct {
	Bones map[string]BoneChannels `json:"bones"`
}

// Decode parses an animation payload.
func Decode(b []byte) (*AnimationData, error) {
	var data AnimationData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data.Bones == nil {
		data.Bones = make(map[string]BoneChannels)
	}
	return &data, nil
}

// ComputeDuration returns the largest timestamp over every channel of every
// bone, or 0 when there are none.
func ComputeDuration(data *AnimationData) float64 {
	if data == nil {
		return 0
	}
	var longest float64
	for _, b := range data.Bones {
		if len(b.Position) > 0 && b.Position.Last() > longest {
			longest = b.Position.Last()
		}
		if len(b.Rotation) > 0 && b.Rotation.Last() > longest {
			longest = b.Rotation.Last()
		}
	}
	return longest
}
