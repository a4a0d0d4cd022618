package memory_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.Ping(ctx); !errors.Is(err, fundme.ErrStoreClosed) {
		t.Errorf("Ping: expected ErrStoreClosed, got %v", err)
	}
	err := s.RecordContribution(ctx, &contribution.Contribution{
		Contributor: common.HexToAddress("0x01"),
		Value:       big.NewInt(1),
	})
	if !errors.Is(err, fundme.ErrStoreClosed) {
		t.Errorf("RecordContribution: expected ErrStoreClosed, got %v", err)
	}
}
