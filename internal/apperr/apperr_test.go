package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := errors.Wrap(NotFound("order %s not found", "abc"), "update order")

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
}

func TestImmutableSentinel(t *testing.T) {
	err := errors.Wrap(ErrImmutable, "spot 0")

	assert.True(t, errors.Is(err, ErrImmutable))
	assert.True(t, IsKind(err, KindConstraint))
	assert.False(t, errors.Is(Constraint("lot exceeds volume"), ErrImmutable))
}

func TestForeignErrorsAreInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, "internal error", PublicMessage(err))
}

func TestPublicMessageHidesCause(t *testing.T) {
	err := Internal(errors.New("dial tcp 10.0.0.1:6379"), "read order")
	assert.Equal(t, "internal error", PublicMessage(err))

	v := ValidationFields([]FieldError{{Field: "symbol", Message: "is required"}})
	assert.Equal(t, "invalid input (symbol: is required)", PublicMessage(v))
}
