package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	t.Run("AND compliance and union of messages", func(t *testing.T) {
		a := Accept("checked a").WithWarning("a looks odd")
		b := Reject("b refused").WithWarning("b looks odder")

		got := Aggregate(a, b)

		assert.False(t, got.WillComply)
		assert.Equal(t, []string{"a looks odd", "b looks odder"}, got.Warnings)
		assert.Equal(t, []string{"b refused"}, got.Errors)
		assert.Equal(t, []string{"checked a"}, got.Info)
	})

	t.Run("No input complies", func(t *testing.T) {
		got := Aggregate()
		assert.True(t, got.WillComply)
		assert.Empty(t, got.Errors)
	})

	t.Run("Nil acknowledgements are skipped", func(t *testing.T) {
		got := Aggregate(nil, Accept("ok"), nil)
		assert.True(t, got.WillComply)
		assert.Equal(t, []string{"ok"}, got.Info)
	})

	t.Run("Inputs are not mutated", func(t *testing.T) {
		a := Accept()
		_ = Aggregate(a, Reject("x"))
		assert.True(t, a.WillComply)
		assert.Empty(t, a.Errors)
	})
}

func TestAcknowledgementCopies(t *testing.T) {
	base := Accept()
	withWarn := base.WithWarning("w")
	withErr := withWarn.WithError("e")

	assert.Empty(t, base.Warnings)
	assert.Equal(t, []string{"w"}, withWarn.Warnings)
	assert.Empty(t, withWarn.Errors)
	assert.Equal(t, []string{"e"}, withErr.Errors)
	assert.True(t, withErr.WillComply, "WithError does not flip compliance")
}
