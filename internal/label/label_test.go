package label_test

import (
	"testing"

	"github.com/anvilbuild/anvil/internal/label"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want label.Label
	}{
		{"//a/b:c", label.Label{Package: "a/b", Name: "c"}},
		{"@repo//a:c", label.Label{Repository: "repo", Package: "a", Name: "c"}},
		{"//:root", label.Label{Package: "", Name: "root"}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := label.Parse(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.in, got.String())
		})
	}
}

func TestParse_errors(t *testing.T) {
	for _, in := range []string{"a/b:c", "@repo/a:c", "//a/b", "//a/b:"} {
		_, err := label.Parse(in)
		require.Error(t, err, in)
	}
}

func TestLabel_less(t *testing.T) {
	a := label.Label{Package: "a", Name: "x"}
	b := label.Label{Package: "b", Name: "a"}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestInterner_identity(t *testing.T) {
	in := label.NewInterner(4)
	l := label.Label{Package: "pkg", Name: "t"}

	a := in.Intern(l)
	b := in.Intern(l)
	require.Same(t, a, b)
	require.Equal(t, 1, in.Len())

	other := in.Intern(label.Label{Package: "pkg", Name: "other"})
	require.NotSame(t, a, other)
	require.Equal(t, 2, in.Len())
}
