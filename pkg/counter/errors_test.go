package counter

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		desc string
		err  error
		want Kind
	}{
		{desc: "nil", err: nil, want: KindUnknown},
		{desc: "plain error", err: errors.New("boom"), want: KindUnknown},
		{desc: "name required", err: ErrNameRequired, want: KindInvalidRequest},
		{desc: "wrapped classified error", err: errors.Wrap(ErrMethodNotAllowed, "dispatch"), want: KindMethodNotAllowed},
		{desc: "corruption", err: corrupted("c1", errors.New("bad")), want: KindStoreCorruption},
		{desc: "unavailable", err: unavailable("get", errors.New("down")), want: KindStoreUnavailable},
		{desc: "context cancelled", err: context.Canceled, want: KindStoreUnavailable},
		{desc: "invalid request", err: InvalidRequest(errors.New("unexpected EOF")), want: KindInvalidRequest},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Equal(t, tC.want, KindOf(tC.err))
		})
	}
}

func TestError_MessageHidesCause(t *testing.T) {
	err := unavailable("storage get", errors.New("dial tcp 10.0.0.1:6379: connection refused"))

	assert.Equal(t, "counter store unavailable", err.Message)
	assert.Contains(t, err.Error(), "connection refused")
}
