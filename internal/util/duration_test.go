package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatDuration(0))
	assert.Equal(t, "00:01:05", FormatDuration(65*time.Second+300*time.Millisecond))
	assert.Equal(t, "26:03:00", FormatDuration(26*time.Hour+3*time.Minute))
}
