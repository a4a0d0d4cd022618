package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/mongo"
	"github.com/xraph/fundme/store/storetest"
)

// Requires a replica set, e.g. mongodb://localhost:27017/?replicaSet=rs0.
func TestConformance(t *testing.T) {
	uri := os.Getenv("FUNDME_MONGO_URI")
	if uri == "" {
		t.Skip("FUNDME_MONGO_URI not set")
	}

	n := 0
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n++
		database := fmt.Sprintf("fundme_test_%d_%d", time.Now().UnixNano(), n)
		s, err := mongo.Open(ctx, uri, database)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Database().Drop(context.Background())
			_ = s.Close()
		})
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
