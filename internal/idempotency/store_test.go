package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestClaim_Get_MarkDone(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "purchase-claims", 10*time.Minute)

	ctx := context.Background()
	key := PurchaseKey("order-123")

	claimed, err := s.Claim(ctx, key, "order-123")
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claimed=true")
	}

	// second claim while the lease is live must lose
	claimed2, err := s.Claim(ctx, key, "order-123")
	if err != nil {
		t.Fatalf("second Claim error: %v", err)
	}
	if claimed2 {
		t.Fatalf("expected claimed=false while lease is held")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil || rec.Status != StatusInProgress || rec.OrderID != "order-123" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := s.MarkDone(ctx, key, "9001"); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	item := mock.table[key]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}

	// DONE is final
	claimed3, err := s.Claim(ctx, key, "order-123")
	if err != nil {
		t.Fatalf("third Claim error: %v", err)
	}
	if claimed3 {
		t.Fatalf("expected DONE claim to block new claims")
	}
	rec, _ = s.Get(ctx, key)
	if rec.PurchaseID != "9001" {
		t.Fatalf("expected purchase id 9001, got %q", rec.PurchaseID)
	}
}

func TestClaim_AfterFailureIsRetakeable(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "purchase-claims", 10*time.Minute)
	ctx := context.Background()
	key := PurchaseKey("order-7")

	if ok, err := s.Claim(ctx, key, "order-7"); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if err := s.MarkFailed(ctx, key, "crm 500"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusFailed || rec.Note != "crm 500" {
		t.Fatalf("unexpected record after failure %+v", rec)
	}
	if ok, err := s.Claim(ctx, key, "order-7"); err != nil || !ok {
		t.Fatalf("expected failed claim to be retaken: ok=%v err=%v", ok, err)
	}
}

func TestClaim_ExpiredLeaseIsRetakeable(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "purchase-claims", time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	ctx := context.Background()
	key := PurchaseKey("order-8")

	if ok, _ := s.Claim(ctx, key, "order-8"); !ok {
		t.Fatal("expected first claim")
	}
	now = now.Add(30 * time.Second)
	if ok, _ := s.Claim(ctx, key, "order-8"); ok {
		t.Fatal("expected live lease to block")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := s.Claim(ctx, key, "order-8"); !ok {
		t.Fatal("expected expired lease to be taken over")
	}
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "purchase-claims", 10*time.Minute)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, PurchaseKey("order-race"), "order-race")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

type failingDynamo struct{ *simpleMock }

func (f *failingDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return nil, errors.New("throttled")
}

func TestClaim_InfrastructureError(t *testing.T) {
	s := NewStore(&failingDynamo{simpleMock: newSimpleMock()}, "purchase-claims", time.Minute)
	ok, err := s.Claim(context.Background(), PurchaseKey("o"), "o")
	if err == nil || ok {
		t.Fatalf("expected error, got ok=%v err=%v", ok, err)
	}
}

func TestGet_Missing(t *testing.T) {
	s := NewStore(newSimpleMock(), "purchase-claims", time.Minute)
	rec, err := s.Get(context.Background(), PurchaseKey("none"))
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", rec, err)
	}
}
