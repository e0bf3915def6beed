package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)

func TestEncodeDecode(t *testing.T) {
	c, err := Decode(Encode(t0, "rpt_abc|123"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, t0.Equal(c.At))
	assert.Equal(t, "rpt_abc|123", c.ID)
}

func TestDecode_Empty(t *testing.T) {
	c, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_Invalid(t *testing.T) {
	for _, s := range []string{
		"not-base64!!!",
		Encode(t0, "")[:4],
		"MTIz",       // "123", no separator
		"YWJjfHJwdA", // "abc|rpt", bad timestamp
	} {
		_, err := Decode(s)
		assert.ErrorIs(t, err, ErrInvalidCursor, s)
	}
}

func TestFollows(t *testing.T) {
	c := &Cursor{At: t0, ID: "rpt_m"}

	assert.True(t, c.Follows(t0.Add(-time.Second), "rpt_z"), "older")
	assert.False(t, c.Follows(t0.Add(time.Second), "rpt_a"), "newer")
	assert.True(t, c.Follows(t0, "rpt_a"), "same time, lower id")
	assert.False(t, c.Follows(t0, "rpt_m"), "the cursor item itself")
	assert.False(t, c.Follows(t0, "rpt_z"), "same time, higher id")

	var none *Cursor
	assert.True(t, none.Follows(t0, "anything"))
}

func TestComputePage(t *testing.T) {
	key := func(s string) (time.Time, string) { return t0, s }

	page, next := ComputePage([]string{"d", "c", "b", "a"}, 3, key)
	assert.Equal(t, []string{"d", "c", "b"}, page)
	require.NotEmpty(t, next)
	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "b", c.ID)

	page, next = ComputePage([]string{"b", "a"}, 3, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
