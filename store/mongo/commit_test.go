package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func labeled(label string) error {
	return mongo.CommandError{Code: 50, Message: "commit", Labels: []string{label}}
}

func TestCommitRetriesUnknownResult(t *testing.T) {
	calls := 0
	err := commit(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return labeled(labelUnknownCommitResult)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCommitStopsOnOtherErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "transient", err: labeled(labelTransientTransaction)},
		{name: "unlabeled", err: errors.New("network down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := commit(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			})
			assert.ErrorContains(t, err, tt.err.Error())
			assert.Equal(t, 1, calls)
		})
	}
}

func TestCommitGivesUp(t *testing.T) {
	calls := 0
	err := commit(context.Background(), func(context.Context) error {
		calls++
		return labeled(labelUnknownCommitResult)
	})
	assert.Error(t, err)
	assert.Equal(t, maxCommitAttempts, calls)
}

func TestHasLabel(t *testing.T) {
	wrapped := fmt.Errorf("fundme/mongo: append funder: %w", labeled(labelTransientTransaction))
	assert.True(t, hasLabel(wrapped, labelTransientTransaction))
	assert.False(t, hasLabel(wrapped, labelUnknownCommitResult))
	assert.False(t, hasLabel(errors.New("plain"), labelTransientTransaction))
	assert.False(t, hasLabel(nil, labelTransientTransaction))
}
