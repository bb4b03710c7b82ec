package pipeline

import (
	"errors"
	"testing"

	"github.com/phil-mansfield/lensmap/io"
)

func TestSelectSource(t *testing.T) {
	tests := []struct {
		srcs []io.Source
		id   int64
		err  error
	}{
		{nil, 0, ErrNoSource},
		{[]io.Source{{ID: 1, Z: 1}}, 1, nil},
		{[]io.Source{{ID: 1, Z: 1}, {ID: 2, Z: 3}, {ID: 3, Z: 2}}, 2, nil},
		{[]io.Source{{ID: 1, Z: 2}, {ID: 2, Z: 3}, {ID: 3, Z: 3}}, 2, nil},
		{[]io.Source{{ID: 4, Z: 3}, {ID: 2, Z: 3}}, 4, nil},
	}

	for i, test := range tests {
		src, err := SelectSource(test.srcs)
		if !errors.Is(err, test.err) {
			t.Errorf("%d) Expected error %v, got %v.", i, test.err, err)
		} else if err == nil && src.ID != test.id {
			t.Errorf("%d) Expected source %d, got %d.", i, test.id, src.ID)
		}
	}
}
