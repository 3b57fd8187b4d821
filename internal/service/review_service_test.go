package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vikar-api/internal/dto"
	"github.com/noah-isme/vikar-api/internal/models"
	"github.com/noah-isme/vikar-api/internal/repository"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type reviewStoreStub struct {
	created   []*models.Review
	exists    bool
	createErr error
	list      []models.Review
}

func (r *reviewStoreStub) Create(ctx context.Context, review *models.Review) error {
	if r.createErr != nil {
		return r.createErr
	}
	review.ID = "review-1"
	r.created = append(r.created, review)
	return nil
}

func (r *reviewStoreStub) Exists(ctx context.Context, shiftID, reviewerID, revieweeID string) (bool, error) {
	return r.exists, nil
}

func (r *reviewStoreStub) ListForWorker(ctx context.Context, workerID string) ([]models.Review, error) {
	return r.list, nil
}

func newReviewFixture(store *reviewStoreStub) *ReviewService {
	ended := shiftAt("shift-a", "company-1", fixedNow.Add(-8*time.Hour), 4, 1, 1)
	upcoming := shiftAt("shift-b", "company-1", fixedNow.Add(8*time.Hour), 4, 1, 1)
	svc := NewReviewService(store, newShiftStoreStub(ended, upcoming), acceptedLookupStub{"shift-a/worker-1": true, "shift-b/worker-1": true}, &auditStub{}, nil, nil)
	svc.now = fixedClock
	return svc
}

func TestReviewServiceCreate(t *testing.T) {
	store := &reviewStoreStub{}
	svc := newReviewFixture(store)

	review, err := svc.Create(context.Background(), "company-1", dto.CreateReviewRequest{
		ShiftID: "shift-a", WorkerID: "worker-1", Rating: 5, Comment: " punctual ", Tags: []string{"Reliable", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, "company-1", review.ReviewerID)
	assert.Equal(t, "punctual", review.Comment)
	assert.Equal(t, []string{"reliable"}, []string(review.Tags))
}

func TestReviewServiceCreateRejects(t *testing.T) {
	cases := []struct {
		name  string
		store *reviewStoreStub
		req   dto.CreateReviewRequest
		owner string
		want  *appErrors.Error
	}{
		{name: "rating too high", req: dto.CreateReviewRequest{ShiftID: "shift-a", WorkerID: "worker-1", Rating: 6}, owner: "company-1", want: appErrors.ErrValidation},
		{name: "rating zero", req: dto.CreateReviewRequest{ShiftID: "shift-a", WorkerID: "worker-1", Rating: 0}, owner: "company-1", want: appErrors.ErrValidation},
		{name: "not owner", req: dto.CreateReviewRequest{ShiftID: "shift-a", WorkerID: "worker-1", Rating: 4}, owner: "company-2", want: appErrors.ErrForbidden},
		{name: "shift not ended", req: dto.CreateReviewRequest{ShiftID: "shift-b", WorkerID: "worker-1", Rating: 4}, owner: "company-1", want: appErrors.ErrConflict},
		{name: "worker not booked", req: dto.CreateReviewRequest{ShiftID: "shift-a", WorkerID: "worker-2", Rating: 4}, owner: "company-1", want: appErrors.ErrForbidden},
		{name: "already reviewed", store: &reviewStoreStub{exists: true}, req: dto.CreateReviewRequest{ShiftID: "shift-a", WorkerID: "worker-1", Rating: 4}, owner: "company-1", want: appErrors.ErrConflict},
		{name: "duplicate race", store: &reviewStoreStub{createErr: repository.ErrDuplicate}, req: dto.CreateReviewRequest{ShiftID: "shift-a", WorkerID: "worker-1", Rating: 4}, owner: "company-1", want: appErrors.ErrConflict},
		{name: "missing shift", req: dto.CreateReviewRequest{ShiftID: "shift-x", WorkerID: "worker-1", Rating: 4}, owner: "company-1", want: appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.store
			if store == nil {
				store = &reviewStoreStub{}
			}
			_, err := newReviewFixture(store).Create(context.Background(), tc.owner, tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestReviewServiceSummary(t *testing.T) {
	store := &reviewStoreStub{list: []models.Review{{Rating: 5}, {Rating: 4}, {Rating: 4}}}
	summary, err := newReviewFixture(store).Summary(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 4.33, summary.Average)

	empty, err := newReviewFixture(&reviewStoreStub{}).Summary(context.Background(), "worker-2")
	require.NoError(t, err)
	assert.Zero(t, empty.Average)
	assert.NotNil(t, empty.Reviews)
}
