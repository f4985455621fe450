package sagalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryErrors(t *testing.T) {
	ctx := context.Background()

	errs, err := NewEntry(ctx, "s-1", StatusFailed, "record_sale", "", []string{"drawer closed"}).Errors()
	require.NoError(t, err)
	assert.Equal(t, []string{"drawer closed"}, errs)

	errs, err = NewEntry(ctx, "s-1", StatusCompleted, "", "", nil).Errors()
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = SagaLog{SagaID: "s-1"}.Errors()
	require.NoError(t, err)
	assert.Nil(t, errs)

	_, err = SagaLog{SagaID: "s-1", ErrorMessages: "drawer closed"}.Errors()
	assert.ErrorContains(t, err, "saga s-1")
}
