package transition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/testutil"
)

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	args := m.Called(ctx, collection, id, partial)
	return args.Error(0)
}

func TestTransitionWritesIffLegal(t *testing.T) {
	kinds := []models.Kind{models.KindProject, models.KindBrief}
	for _, kind := range kinds {
		for _, from := range kind.Statuses() {
			for _, to := range kind.Statuses() {
				up := &mockUpdater{}
				legal := Legal(kind, from, to)
				if legal {
					up.On("Update", mock.Anything, kind.Collection(), "r1",
						map[string]any{models.FieldStatus: string(to)}).Return(nil).Once()
				}

				c := NewController(up, nil)
				err := c.Transition(context.Background(), models.Record{ID: "r1", Kind: kind, Status: from}, to)

				if legal {
					require.NoError(t, err, "%s %s → %s", kind, from, to)
					up.AssertExpectations(t)
				} else {
					require.ErrorIs(t, err, apperr.ErrIllegalTransition, "%s %s → %s", kind, from, to)
					up.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				}
			}
		}
	}
}

func TestBriefWorkflow(t *testing.T) {
	up := &mockUpdater{}
	c := NewController(up, nil)
	brief := models.Record{ID: "b1", Kind: models.KindBrief, Status: models.StatusPending}

	err := c.Transition(context.Background(), brief, models.StatusInProgress)
	require.ErrorIs(t, err, apperr.ErrIllegalTransition)
	up.AssertNumberOfCalls(t, "Update", 0)

	up.On("Update", mock.Anything, "briefs", "b1",
		map[string]any{"status": "accepted"}).Return(nil).Once()
	require.NoError(t, c.Transition(context.Background(), brief, models.StatusAccepted))
	up.AssertExpectations(t)
}

func TestLegalNext(t *testing.T) {
	require.Equal(t, []models.Status{models.StatusHiring}, LegalNext(models.KindProject, models.StatusDraft))
	require.Empty(t, LegalNext(models.KindProject, models.StatusCompleted))
	require.ElementsMatch(t,
		[]models.Status{models.StatusAccepted, models.StatusRejected},
		LegalNext(models.KindBrief, models.StatusPending))
	require.Empty(t, LegalNext(models.KindBrief, models.StatusRejected))
	require.Empty(t, LegalNext(models.KindBrief, models.StatusDraft))

	// Callers may not mutate the tables.
	next := LegalNext(models.KindProject, models.StatusDraft)
	next[0] = models.StatusCompleted
	require.Equal(t, []models.Status{models.StatusHiring}, LegalNext(models.KindProject, models.StatusDraft))
}

func TestTransitionMissingRecord(t *testing.T) {
	store := testutil.TestStore(t)
	c := NewController(store, nil)

	err := c.Transition(context.Background(),
		models.Record{ID: "gone", Kind: models.KindProject, Status: models.StatusDraft}, models.StatusHiring)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

// Two controllers acting on the same stale record both succeed; the store
// keeps whichever write landed last. Transitions are not compare-and-swap.
func TestConcurrentTransitionsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	id, err := store.Create(ctx, models.CollectionBriefs, map[string]any{
		models.FieldOwner:  "u1",
		models.FieldStatus: string(models.StatusPending),
	})
	require.NoError(t, err)

	stale := models.Record{ID: id, Kind: models.KindBrief, Status: models.StatusPending}
	a := NewController(store, nil)
	b := NewController(store, nil)

	require.NoError(t, a.Transition(ctx, stale, models.StatusAccepted))
	require.NoError(t, b.Transition(ctx, stale, models.StatusRejected))

	doc, err := store.Get(ctx, models.CollectionBriefs, id)
	require.NoError(t, err)
	require.Equal(t, "rejected", doc.Fields[models.FieldStatus])
}
