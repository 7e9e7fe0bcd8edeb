package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "postgres", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "postgres other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "mysql", err: errors.New("Error 1062 (23000): Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: features.name"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestIsLockConflict(t *testing.T) {
	assert.False(t, IsLockConflict(nil))
	assert.True(t, IsLockConflict(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsLockConflict(fmt.Errorf("save: %w", &pgconn.PgError{Code: "55P03"})))
	assert.True(t, IsLockConflict(errors.New("database is locked")))
	assert.False(t, IsLockConflict(&pgconn.PgError{Code: "23505"}))
}
