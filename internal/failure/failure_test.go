package failure

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfFollowsWrapChain(t *testing.T) {
	base := New(NotFound, "unit %q not found", "greet")
	wrapped := fmt.Errorf("remove: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, Duplicate))
}

func TestUnclassifiedErrorsAreIOFailures(t *testing.T) {
	assert.Equal(t, IOFailure, KindOf(fs.ErrPermission))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(IOFailure, fs.ErrNotExist, "read %s", "a.py")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "read a.py")
	assert.Nil(t, Wrap(IOFailure, nil, "ignored"))
}

func TestErrorIncludesLine(t *testing.T) {
	err := &Error{Kind: SyntaxInvalid, Message: "unexpected `)`", Line: 7}
	assert.Equal(t, "SyntaxInvalid: unexpected `)` (line 7)", err.Error())
}
