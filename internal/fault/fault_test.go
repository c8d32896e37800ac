package fault

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := &Error{Kind: KindDegenerateConfiguration, Op: "estimate", Points: 3, Condition: 1e17}

	assert.ErrorIs(t, err, ErrDegenerate)
	assert.NotErrorIs(t, err, ErrInsufficientPoints)

	wrapped := fmt.Errorf("session: %w", err)
	assert.ErrorIs(t, wrapped, ErrDegenerate)
	assert.Equal(t, KindDegenerateConfiguration, KindOf(wrapped))
}

func TestError_MessageCarriesContext(t *testing.T) {
	err := &Error{Kind: KindDegenerateConfiguration, Op: "estimate", Detail: "source points are collinear", Points: 3, Condition: 2.5e17}
	assert.Equal(t, "estimate: degenerate configuration: source points are collinear (points=3, condition=2.5e+17)", err.Error())

	err = New(KindInsufficientPoints, "estimate", "need at least %d points", 3)
	assert.Equal(t, "estimate: insufficient points: need at least 3 points", err.Error())
}

func TestIO_UnwrapsCause(t *testing.T) {
	_, statErr := os.Stat("/nonexistent/definitely/missing")
	require.Error(t, statErr)

	err := IO("write report", statErr)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindShapeMismatch, KindOf(fmt.Errorf("x: %w", ErrShapeMismatch)))

	_, err := os.Open("/nonexistent/definitely/missing")
	assert.Equal(t, KindIOFailure, KindOf(err))
}
