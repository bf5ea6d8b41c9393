package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type embedded struct {
	Inner string `json:"inner"`
}

type outer struct {
	embedded
	Count  *int `json:"count"`
	hidden string
}

func TestResolve(t *testing.T) {
	n := 3
	v := outer{embedded: embedded{Inner: "x"}, Count: &n, hidden: "secret"}

	assert.Equal(t, "x", Resolve(v, "inner"), "promoted field via json tag")
	assert.Equal(t, 3, Resolve(&v, "count"), "pointers are dereferenced")
	assert.Nil(t, Resolve(v, "hidden"), "unexported fields are invisible")
	assert.Nil(t, Resolve(v, "count.value"))
	assert.Equal(t, v, Resolve(v, ""))
	assert.Nil(t, Resolve(nil, "a"))
	assert.Nil(t, Resolve(map[int]any{1: "a"}, "1"), "non-string map keys are not addressable")
}
