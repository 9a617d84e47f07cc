package skeleton

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefinition = `{
  "name": "Scene",
  "scale": [0.5, 0.5, 0.5],
  "position": [-1, 0, -1],
  "children": [{
    "name": "J_Bip_C_Hips", "humanoid": "hips", "position": [0, 1, 0],
    "children": [
      {"name": "J_Bip_C_Spine", "humanoid": "spine", "position": [0, 0.1, 0]},
      {"name": "J_Sec_Hair1", "position": [0, 0.5, 0]}
    ]
  }]
}`

func TestFileLoader_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatar.skeleton.json"), []byte(testDefinition), 0o600))

	sk, err := FileLoader{Dir: dir}.Load("avatar.vrm")
	require.NoError(t, err)

	hips, err := sk.RootBone()
	require.NoError(t, err)
	assert.Equal(t, "J_Bip_C_Hips", hips.Name)
	assert.Equal(t, []string{"hips", "spine"}, sk.Slots())
	assert.Len(t, sk.Bones(), 4)

	// world matrices are fresh after loading
	w := hips.WorldMatrix()
	assert.InDeltaSlice(t, []float64{-1, 0.5, -1}, []float64{w[12], w[13], w[14]}, 1e-9)
}

func TestFileLoader_missing(t *testing.T) {
	_, err := FileLoader{Dir: t.TempDir()}.Load("../../etc/passwd")
	assert.True(t, errors.Is(err, ErrModelNotFound), "got %v", err)
}

func TestSkeleton_FindHumanBone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.skeleton.json"), []byte(testDefinition), 0o600))
	sk, err := FileLoader{Dir: dir}.Load("a.skeleton.json")
	require.NoError(t, err)

	assert.NotNil(t, sk.FindHumanBone("J_Bip_C_Spine"))
	assert.Nil(t, sk.FindHumanBone("J_Sec_Hair1"), "non-humanoid bones are not animation targets")
	assert.Nil(t, sk.FindHumanBone("missing"))
}

func TestSkeleton_FindHumanBone_shared_name(t *testing.T) {
	chest := NewBone("Chest")
	upper := NewBone("Chest")
	hips := NewBone("Hips")
	hips.Add(chest)
	chest.Add(upper)
	sk := New(hips, map[string]*Bone{"hips": hips, "upperChest": upper, "chest": chest})

	for i := 0; i < 20; i++ {
		require.Same(t, chest, sk.FindHumanBone("Chest"))
	}
	assert.Same(t, hips, sk.FindHumanBone("Hips"))
}

func TestSkeleton_RootBone_missing(t *testing.T) {
	sk := New(NewBone("Scene"), nil)
	_, err := sk.RootBone()
	assert.ErrorIs(t, err, ErrNoRootBone)
}

func TestBuild_duplicate_slot(t *testing.T) {
	def := &Definition{Name: "Root", Children: []*Definition{
		{Name: "A", Humanoid: "hips"},
		{Name: "B", Humanoid: "hips"},
	}}
	_, err := Build(def)
	assert.Error(t, err)
}
