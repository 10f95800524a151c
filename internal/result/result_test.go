package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	ok := Ok(42)
	assert.True(t, ok.OK())
	v, err := ok.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	cause := errors.New("upstream exploded")
	failed := Fail[int](&Failure{Message: "Something went wrong", Cause: cause})
	assert.False(t, failed.OK())
	_, err = failed.Unwrap()
	assert.EqualError(t, err, "Something went wrong")
	assert.ErrorIs(t, err, cause)
}
