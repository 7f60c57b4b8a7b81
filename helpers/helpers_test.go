package helpers

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	e1 := errors.Errorf("first")
	e2 := errors.Errorf("second")
	folded := FoldErrors([]error{e1, nil, e2})
	assert.Error(t, folded)
	assert.Equal(t, "first\nsecond", folded.Error())
}

func TestIntSecondDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 60*time.Second, IntSecondDefault(0, 60*time.Second))
	assert.Equal(t, 5*time.Second, IntSecondDefault(5, 60*time.Second))
	assert.Equal(t, 200*time.Millisecond, IntMillisecondDefault(0, 200*time.Millisecond))
	assert.Equal(t, 7*time.Millisecond, IntMillisecondDefault(7, 200*time.Millisecond))
}
