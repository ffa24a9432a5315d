package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstraintColumn(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"UNIQUE constraint failed: products.sku", "sku"},
		{"UNIQUE constraint failed: products.sku (2067)", "sku"},
		{"UNIQUE constraint failed: check_ins.habit_id, check_ins.day", "habit_id,day"},
		{"NOT NULL constraint failed: tags.name", "name"},
		{"FOREIGN KEY constraint failed", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, constraintColumn(tt.msg), tt.msg)
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", "Tag", nil))

	nf := &NotFoundError{Entity: "Tag", ID: 1}
	assert.Same(t, nf, classify("op", "Tag", nf), "typed errors pass through")

	err := classify("write tags", "Tag", errors.New("NOT NULL constraint failed: tags.name"))
	var ce *ConstraintError
	if assert.ErrorAs(t, err, &ce) {
		assert.Equal(t, ConstraintNotNull, ce.Kind)
		assert.Equal(t, "name", ce.Field)
	}

	err = classify("query tags", "Tag", context.DeadlineExceeded)
	var se *StorageError
	if assert.ErrorAs(t, err, &se) {
		assert.Equal(t, "query tags", se.Op)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}
