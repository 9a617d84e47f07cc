// Package rig translates between a model's own bone names and the generic
// "mixamorig" naming used by the motion-generation service, and serializes a
// skeleton into the bone tree that service expects.
package rig

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Prefix marks names in the generic rig convention.
const Prefix = "mixamorig"

// ToGenericName converts a real bone name to the generic rig name.
//
// Digits are removed, a trailing "L"/"R" becomes a "Left"/"Right" prefix,
// underscore separated segments are capitalized and joined, "Upper" becomes
// "Up", "Lower" is dropped and Prefix is prepended. The transform is lossy:
// "Spine1" and "Spine2" both map to "mixamorigSpine".
func ToGenericName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		return r
	}, name)

	side := ""
	switch {
	case strings.HasSuffix(name, "L"):
		side, name = "Left", strings.TrimSuffix(name, "L")
	case strings.HasSuffix(name, "R"):
		side, name = "Right", strings.TrimSuffix(name, "R")
	}

	var b strings.Builder
	b.WriteString(side)
	for _, part := range strings.Split(name, "_") {
		b.WriteString(capitalize(part))
	}

	mapped := strings.ReplaceAll(b.String(), "Upper", "Up")
	mapped = strings.ReplaceAll(mapped, "Lower", "")
	return Prefix + mapped
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Collision records two real bones that normalized to the same generic name.
// Current is the one kept in the map.
type Collision struct {
	Generic  string `json:"generic"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// NameMap maps generic rig names back to the skeleton's real bone names. It is
// filled while walking a skeleton; the last bone visited wins a collision and
// every collision is kept for inspection.
type NameMap struct {
	names      map[string]string
	collisions []Collision
}

// NewNameMap returns an empty map.
func NewNameMap() *NameMap {
	return &NameMap{names: make(map[string]string)}
}

// Set records generic -> real, overwriting an earlier different entry.
func (m *NameMap) Set(generic, realName string) {
	if prev, ok := m.names[generic]; ok && prev != realName {
		m.collisions = append(m.collisions, Collision{Generic: generic, Previous: prev, Current: realName})
	}
	m.names[generic] = realName
}

// Real returns the real bone name for a generic one. A nil map resolves nothing.
func (m *NameMap) Real(generic string) (string, bool) {
	if m == nil {
		return "", false
	}
	realName, ok := m.names[generic]
	return realName, ok
}

// Len is the number of distinct generic names.
func (m *NameMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Collisions returns the collisions seen so far, in visit order.
func (m *NameMap) Collisions() []Collision {
	if m == nil {
		return nil
	}
	return append([]Collision(nil), m.collisions...)
}

// Map returns a copy of the generic -> real table.
func (m *NameMap) Map() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.names {
		out[k] = v
	}
	return out
}
