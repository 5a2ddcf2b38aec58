package attributes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResizeGap(t *testing.T) {
	for _, tc := range []struct {
		name             string
		buf              string
		off, oldSz, newS int
		want             string
	}{
		{name: "same size", buf: "aaXXbb", off: 2, oldSz: 2, newS: 2, want: "aa..bb"},
		{name: "shrink", buf: "aaXXXbb", off: 2, oldSz: 3, newS: 1, want: "aa.bb"},
		{name: "grow", buf: "aaXbb", off: 2, oldSz: 1, newS: 4, want: "aa....bb"},
		{name: "remove", buf: "aaXXbb", off: 2, oldSz: 2, newS: 0, want: "aabb"},
		{name: "at the end", buf: "aaXX", off: 2, oldSz: 2, newS: 3, want: "aa..."},
		{name: "at the start", buf: "Xbb", off: 0, oldSz: 1, newS: 2, want: "..bb"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := resizeGap([]byte(tc.buf), tc.off, tc.oldSz, tc.newS)
			require.Len(t, res, len(tc.want))

			for i := tc.off; i < tc.off+tc.newS; i++ {
				res[i] = '.'
			}
			require.Equal(t, tc.want, string(res))
		})
	}

	t.Run("spare capacity", func(t *testing.T) {
		buf := make([]byte, 5, 16)
		copy(buf, "aaXbb")

		res := resizeGap(buf, 2, 1, 3)
		require.Same(t, &buf[0], &res[0])
		require.Equal(t, "bb", string(res[5:]))
		require.Equal(t, "aa", string(res[:2]))
	})
}
