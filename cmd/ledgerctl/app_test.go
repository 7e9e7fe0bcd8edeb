package main

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-02-01")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))

	got, err = parseDate("2026-02-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, got.Hour())

	got, err = parseDate("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseDate("next week")
	assert.Error(t, err)
}

func TestParseQuantities(t *testing.T) {
	got, err := parseQuantities([]string{"10=2", "11=1", "10=1"})
	require.NoError(t, err)
	assert.Equal(t, map[snowflake.ID]int{10: 3, 11: 1}, got)

	_, err = parseQuantities([]string{"10"})
	assert.Error(t, err)
	_, err = parseQuantities([]string{"x=1"})
	assert.Error(t, err)
	_, err = parseQuantities([]string{"10=many"})
	assert.Error(t, err)
}
