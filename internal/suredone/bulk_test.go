package suredone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkBatch_ActionPrependConvention(t *testing.T) {
	rows := [][]string{{"x=1"}, {"x=2"}}

	batch := BulkBatch(ActionEdit, rows)

	require.Len(t, batch, 2)
	assert.Equal(t, []string{"action=edit", "x=1"}, batch[0])
	assert.Equal(t, []string{"", "x=2"}, batch[1])
}

func TestBulkBatch_DoesNotMutateCallerRows(t *testing.T) {
	rows := [][]string{{"guid", "stock"}, {"abc", "3"}}

	_ = BulkBatch(ActionEnd, rows)

	assert.Equal(t, [][]string{{"guid", "stock"}, {"abc", "3"}}, rows)
}

func TestBulkBatch_SingleRow(t *testing.T) {
	batch := BulkBatch(ActionAdd, [][]string{{"guid"}})
	assert.Equal(t, [][]string{{"action=add", "guid"}}, batch)
}

func TestDeleteRows_HeaderPlusOneRowPerGUID(t *testing.T) {
	rows := deleteRows([]string{"g1", "g2"})
	assert.Equal(t, [][]string{{"guid"}, {"g1"}, {"g2"}}, rows)
}
