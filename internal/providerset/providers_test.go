package providerset_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/providerset"
)

func TestBuilder_buildDetectsDuplicate(t *testing.T) {
	b := providerset.NewBuilder()
	b.Put("DefaultInfo", cty.StringVal("a"))
	b.Put("DefaultInfo", cty.StringVal("b"))

	set, dup := b.Build()
	require.Equal(t, providerset.ID("DefaultInfo"), dup)
	v, ok := set.Get("DefaultInfo")
	require.True(t, ok)
	require.True(t, v.RawEquals(cty.StringVal("b")), "the later Put wins, but Build still reports the collision")
}

func TestSet_mergeLaterWins(t *testing.T) {
	b1 := providerset.NewBuilder()
	b1.Put("DefaultInfo", cty.StringVal("base"))
	base, _ := b1.Build()

	b2 := providerset.NewBuilder()
	b2.Put("DefaultInfo", cty.StringVal("aspect"))
	b2.Put("ExtraInfo", cty.True)
	aspect, _ := b2.Build()

	merged := base.Merge(aspect)
	v, _ := merged.Get("DefaultInfo")
	require.True(t, v.RawEquals(cty.StringVal("aspect")))
	require.True(t, merged.Has("ExtraInfo"))
}

func TestSet_equalValue(t *testing.T) {
	b1 := providerset.NewBuilder()
	b1.Put("DefaultInfo", cty.StringVal("x"))
	s1, _ := b1.Build()

	b2 := providerset.NewBuilder()
	b2.Put("DefaultInfo", cty.StringVal("x"))
	s2, _ := b2.Build()

	require.True(t, s1.EqualValue(s2))

	b3 := providerset.NewBuilder()
	b3.Put("DefaultInfo", cty.StringVal("y"))
	s3, _ := b3.Build()
	require.False(t, s1.EqualValue(s3))
}

func TestSet_idsAreSorted(t *testing.T) {
	b := providerset.NewBuilder()
	b.Put("ZInfo", cty.True)
	b.Put("AInfo", cty.True)
	set, _ := b.Build()
	require.Equal(t, []providerset.ID{"AInfo", "ZInfo"}, set.IDs())
}
