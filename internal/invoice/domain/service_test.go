package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvoiceID(t *testing.T) {
	id, err := ParseInvoiceID("Invoice #123")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(123), id)

	id, err = ParseInvoiceID("456")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(456), id)

	_, err = ParseInvoiceID("Invoice #")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSlugInput(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SlugString(" a, b  c ,").Values())
	assert.Equal(t, []string{"a", "b"}, SlugList(" a ", "", "b").Values())
	assert.True(t, SlugString("  ,  ").Blank())
	assert.True(t, SlugInput{}.Blank())
	assert.True(t, SlugList().Blank())
	assert.False(t, SlugString("a").Blank())
}

func TestTerm(t *testing.T) {
	start := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	assert.True(t, DefaultTerm.AddTo(start).Equal(start.AddDate(1, 0, 0)))
	assert.True(t, Term{}.AddTo(start).Equal(start.AddDate(1, 0, 0)))
	assert.True(t, Term{Days: 30}.AddTo(start).Equal(start.AddDate(0, 0, 30)))
}

func TestScopeValid(t *testing.T) {
	assert.True(t, ScopeShouldExpire.Valid())
	assert.True(t, ScopeAll.Valid())
	assert.False(t, Scope("everything").Valid())
}
