package surge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIdentifier_Monotonic(t *testing.T) {
	a := nextIdentifier()
	b := nextIdentifier()
	c := nextIdentifier()

	assert.Less(t, uint64(a), uint64(b))
	assert.Less(t, uint64(b), uint64(c))
}

func TestIdentifier_String(t *testing.T) {
	id := Identifier(42)
	assert.Equal(t, "session-42", id.String())
}
