package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	require.Equal(t, start, fake.Now())
	require.Equal(t, start.Add(90*time.Minute), fake.Advance(90*time.Minute))
	require.Equal(t, start.Add(90*time.Minute), fake.Now())

	fake.Set(start)
	require.Equal(t, start, fake.Now())
}

func TestSystemClockIsUTC(t *testing.T) {
	require.Equal(t, time.UTC, System().Now().Location())
}

func TestFuncClock(t *testing.T) {
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Func(func() time.Time { return fixed })
	require.Equal(t, fixed, c.Now())
}
