package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "enrollment:student:42", Key("student", "42"))
	assert.Equal(t, "enrollment:course:*", Key("course", "*"))
}
