package sequence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oakbooks/oakbooks/internal/sequence"
)

func TestFormatRender(t *testing.T) {
	at := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		documentType string
		n            int64
		want         string
	}{
		{name: "InvoiceWithYearAndMonth", documentType: "INVOICE", n: 7, want: "INV-2025-03-0007"},
		{name: "BillWithYear", documentType: "BILL", n: 42, want: "BILL-2025-0042"},
		{name: "JournalPlain", documentType: "JOURNAL", n: 1, want: "JRN-0001"},
		{name: "PaymentWithYear", documentType: "PAYMENT", n: 310, want: "PAY-2025-0310"},
		{name: "AdjustmentPlain", documentType: "ADJUSTMENT", n: 9, want: "ADJ-0009"},
		{name: "UnknownTypeFallsBackToName", documentType: "credit_note", n: 3, want: "CREDIT_NOTE-0003"},
		{name: "WidthDoesNotTruncate", documentType: "JOURNAL", n: 123456, want: "JRN-123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := sequence.FormatFor(tt.documentType)
			assert.Equal(t, tt.want, format.Render(tt.n, at))
		})
	}
}

func TestService_Allocate_OrganizationScope(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := sequence.NewMockRepository(ctrl)
	svc := sequence.NewService(repo)

	orgID := uuid.New()

	repo.EXPECT().
		NextOrCreate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key sequence.Key) (int64, error) {
			assert.Equal(t, orgID, key.OrganizationID)
			assert.Nil(t, key.BranchID)
			assert.Equal(t, "JOURNAL", key.DocumentType)
			assert.Nil(t, key.Year)
			assert.Nil(t, key.Month)
			return 12, nil
		})

	ref, err := svc.Allocate(context.Background(), sequence.Scope{
		OrganizationID: orgID,
		DocumentType:   "JOURNAL",
		At:             time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "JRN-0012", ref)
}

func TestService_Allocate_BranchCounterWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := sequence.NewMockRepository(ctrl)
	svc := sequence.NewService(repo)

	orgID := uuid.New()
	branchID := uuid.New()

	repo.EXPECT().
		NextExisting(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key sequence.Key) (int64, bool, error) {
			require.NotNil(t, key.BranchID)
			assert.Equal(t, branchID, *key.BranchID)
			require.NotNil(t, key.Year)
			assert.Equal(t, 2025, *key.Year)
			require.NotNil(t, key.Month)
			assert.Equal(t, 3, *key.Month)
			return 7, true, nil
		})

	ref, err := svc.Allocate(context.Background(), sequence.Scope{
		OrganizationID: orgID,
		BranchID:       &branchID,
		DocumentType:   "INVOICE",
		At:             time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-03-0007", ref)
}

func TestService_Allocate_FallsBackToOrganizationCounter(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := sequence.NewMockRepository(ctrl)
	svc := sequence.NewService(repo)

	orgID := uuid.New()
	branchID := uuid.New()

	gomock.InOrder(
		repo.EXPECT().
			NextExisting(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, key sequence.Key) (int64, bool, error) {
				require.NotNil(t, key.BranchID)
				return 0, false, nil
			}),
		repo.EXPECT().
			NextExisting(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, key sequence.Key) (int64, bool, error) {
				assert.Nil(t, key.BranchID)
				return 55, true, nil
			}),
	)

	ref, err := svc.Allocate(context.Background(), sequence.Scope{
		OrganizationID: orgID,
		BranchID:       &branchID,
		DocumentType:   "PAYMENT",
		At:             time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY-2025-0055", ref)
}

func TestService_Allocate_CreatesBranchCounterWhenNoneExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := sequence.NewMockRepository(ctrl)
	svc := sequence.NewService(repo)

	orgID := uuid.New()
	branchID := uuid.New()

	repo.EXPECT().NextExisting(gomock.Any(), gomock.Any()).Return(int64(0), false, nil).Times(2)
	repo.EXPECT().
		NextOrCreate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key sequence.Key) (int64, error) {
			require.NotNil(t, key.BranchID)
			assert.Equal(t, branchID, *key.BranchID)
			return 1, nil
		})

	ref, err := svc.Allocate(context.Background(), sequence.Scope{
		OrganizationID: orgID,
		BranchID:       &branchID,
		DocumentType:   "JOURNAL",
		At:             time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "JRN-0001", ref)
}

func TestService_Allocate_Unavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := sequence.NewMockRepository(ctrl)
	svc := sequence.NewService(repo)

	repo.EXPECT().
		NextOrCreate(gomock.Any(), gomock.Any()).
		Return(int64(0), errors.New("connection refused"))

	_, err := svc.Allocate(context.Background(), sequence.Scope{
		OrganizationID: uuid.New(),
		DocumentType:   "JOURNAL",
		At:             time.Now(),
	})

	var unavailable *sequence.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "JOURNAL", unavailable.DocumentType)
}

// memoryRepo is a mutex-guarded counter store for exercising Allocate under
// concurrency.
type memoryRepo struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (r *memoryRepo) key(key sequence.Key) string {
	k := key.OrganizationID.String() + "/" + key.DocumentType
	if key.BranchID != nil {
		k += "/" + key.BranchID.String()
	}
	return k
}

func (r *memoryRepo) NextExisting(_ context.Context, key sequence.Key) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := r.key(key)
	if _, ok := r.counters[k]; !ok {
		return 0, false, nil
	}

	r.counters[k]++
	return r.counters[k], true, nil
}

func (r *memoryRepo) NextOrCreate(_ context.Context, key sequence.Key) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := r.key(key)
	r.counters[k]++
	return r.counters[k], nil
}

func TestService_Allocate_ConcurrentAllocationsAreDistinct(t *testing.T) {
	svc := sequence.NewService(&memoryRepo{counters: make(map[string]int64)})

	scope := sequence.Scope{
		OrganizationID: uuid.New(),
		DocumentType:   "JOURNAL",
		At:             time.Now(),
	}

	const workers = 100

	refs := make(chan string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ref, err := svc.Allocate(context.Background(), scope)
			assert.NoError(t, err)
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]struct{}, workers)
	for ref := range refs {
		_, dup := seen[ref]
		assert.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, workers)
}
