package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent(t *testing.T) {
	info := Current()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.StartedAt)
	assert.NotEmpty(t, info.Uptime)
}
