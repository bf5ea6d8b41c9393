package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	ID      string        `json:"id"`
	Count   int64         `json:"count"`
	Payload []byte        `json:"payload"`
	Every   time.Duration `json:"every"`
	Extra   string        `json:"extra"`
}

type target struct {
	ID      string        `json:"id"`
	Count   int           `json:"count"`
	Payload []byte        `json:"payload"`
	Every   time.Duration `json:"every"`
}

func TestDecode_FromStruct(t *testing.T) {
	var out target
	err := Decode(source{ID: "a", Count: 9007199254740993, Payload: []byte{0, 1, 2}, Every: time.Second, Extra: "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, target{ID: "a", Count: 9007199254740993, Payload: []byte{0, 1, 2}, Every: time.Second}, out)
}

func TestDecode_FromMap(t *testing.T) {
	var out target
	err := Decode(map[string]any{"id": "b", "count": 3, "every": "1m"}, &out)
	require.NoError(t, err)
	assert.Equal(t, target{ID: "b", Count: 3, Every: time.Minute}, out)
}

func TestDecode_TypeMismatch(t *testing.T) {
	var out target
	err := Decode(map[string]any{"count": []string{"no"}}, &out)
	assert.Error(t, err)
}

func TestDecode_PlainStringBytes(t *testing.T) {
	var out struct {
		Body []byte `json:"body"`
	}
	require.NoError(t, Decode(map[string]any{"body": "hello"}, &out))
	assert.Equal(t, []byte("hello"), out.Body)

	require.NoError(t, Decode(map[string]any{"body": "AAEC"}, &out))
	assert.Equal(t, []byte{0, 1, 2}, out.Body)
}

func TestDecode_WeakTyping(t *testing.T) {
	var out target
	err := Decode(map[string]any{"id": 7, "count": "42"}, &out)
	require.NoError(t, err)
	assert.Equal(t, target{ID: "7", Count: 42}, out)
}
