package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseName(t *testing.T) {
	testCases := []struct {
		desc string
		path string
		want string
		err  error
	}{
		{desc: "simple name", path: "/c1", want: "c1"},
		{desc: "nested path is kept verbatim", path: "/a/b/", want: "a/b/"},
		{desc: "only one slash is stripped", path: "//c1", want: "/c1"},
		{desc: "escaped characters are kept", path: "/a%20b", want: "a%20b"},
		{desc: "root", path: "/", err: ErrNameRequired},
		{desc: "empty path", path: "", err: ErrNameRequired},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			got, err := ParseName(tC.path)

			assert.Equal(t, tC.want, got)
			assert.Equal(t, tC.err, err)
		})
	}
}
