package idgen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	id := New("rpt_")
	assert.True(t, strings.HasPrefix(id, "rpt_"))
	assert.Len(t, id, len("rpt_")+24)
	assert.NotEqual(t, id, New("rpt_"))
}

func TestNew_SortsBySecond(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := newAt("rpt_", t0)
	later := newAt("rpt_", t0.Add(time.Second))
	assert.Less(t, earlier, later)
	assert.Equal(t, earlier[:12], newAt("rpt_", t0)[:12], "same second shares the time prefix")
}
