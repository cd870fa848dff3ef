package plan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlabs/audiobible/internal/domain"
	"github.com/nlabs/audiobible/internal/log"
	"github.com/nlabs/audiobible/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(store.NewMemoryStore(), log.NullLogger())
}

func twoDayPlan() *domain.Plan {
	return &domain.Plan{
		ID:    "p1",
		Title: "Gospels in two days",
		Days:  2,
		Goals: []domain.DailyGoal{
			{
				Day:       1,
				Completed: true,
				Portions: []domain.ReadingPortion{
					{BookIndex: 39, Chapter: 1, Completed: true},
					{BookIndex: 39, Chapter: 2, Completed: true},
				},
			},
			{
				Day: 2,
				Portions: []domain.ReadingPortion{
					{BookIndex: 39, Chapter: 3},
					{BookIndex: 39, Chapter: 4},
				},
			},
		},
		Status: domain.PlanStarted,
	}
}

func TestStoppedAt(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()

	// Day 1 is done, day 2's first portion is next.
	pos := svc.StoppedAt(plan)
	assert.Equal(t, domain.Position{Day: 2, PortionIndex: 0}, pos)

	// Partway into day 2.
	plan.Goals[1].Portions[0].Completed = true
	pos = svc.StoppedAt(plan)
	assert.Equal(t, domain.Position{Day: 2, PortionIndex: 1}, pos)

	// Everything done: Day is the completion sentinel.
	plan.Goals[1].Portions[1].Completed = true
	plan.Goals[1].Completed = true
	pos = svc.StoppedAt(plan)
	assert.Equal(t, -1, pos.Day)
}

func TestSaveGetDelete(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()

	require.NoError(t, svc.Save(plan))

	got, err := svc.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, plan, got)

	assert.Len(t, svc.GetAll(), 1)

	require.NoError(t, svc.Delete("p1"))
	_, err = svc.Get("p1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkCompletedRollsUp(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()
	require.NoError(t, svc.Save(plan))

	require.NoError(t, svc.MarkCompleted(plan, 39, 3))
	assert.True(t, plan.Goals[1].Portions[0].Completed)
	assert.False(t, plan.Goals[1].Completed)

	// Last portion flips the goal and the whole plan.
	require.NoError(t, svc.MarkCompleted(plan, 39, 4))
	assert.True(t, plan.Goals[1].Completed)
	assert.Equal(t, domain.PlanCompleted, plan.Status)

	// The roll-up was persisted.
	got, err := svc.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanCompleted, got.Status)
}

func TestMarkCompletedUnknownChapterIsNoOp(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()
	status := plan.Status

	require.NoError(t, svc.MarkCompleted(plan, 0, 99))
	assert.Equal(t, status, plan.Status)
	assert.False(t, plan.Goals[1].Portions[0].Completed)
}

func TestMarkDayCompleted(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()
	require.NoError(t, svc.Save(plan))

	require.NoError(t, svc.MarkDayCompleted(plan, 2))
	assert.True(t, plan.Goals[1].Completed)
	assert.Equal(t, domain.PlanCompleted, plan.Status)

	err := svc.MarkDayCompleted(plan, 9)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDaysRemaining(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()
	assert.Equal(t, 1, svc.DaysRemaining(plan))

	require.NoError(t, svc.MarkDayCompleted(plan, 2))
	assert.Equal(t, 0, svc.DaysRemaining(plan))
}

func TestImportFromURLResetsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Document arrives with completion state already set; the import
		// must strip it.
		fmt.Fprint(w, `{
			"title": "Psalms in a week",
			"goals": [
				{"day": 1, "completed": true,
				 "portions": [{"bookIdx": 18, "chapter": 1, "completed": true}]},
				{"day": 2,
				 "portions": [{"bookIdx": 18, "chapter": 2}]}
			]
		}`)
	}))
	defer srv.Close()

	svc := newTestService(t)
	plan, err := svc.ImportFromURL(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, 2, plan.Days)
	assert.Equal(t, domain.PlanNotStarted, plan.Status)
	assert.False(t, plan.Goals[0].Completed)
	assert.False(t, plan.Goals[0].Portions[0].Completed)

	started, err := time.Parse(time.RFC3339, plan.StartedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), started, time.Minute)

	// Imported plans are persisted immediately.
	got, err := svc.Get(plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Psalms in a week", got.Title)
}

func TestImportFromURLRejectsEmptyPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"title": "empty", "goals": []}`)
	}))
	defer srv.Close()

	svc := newTestService(t)
	_, err := svc.ImportFromURL(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestLoadCatalogSkipsMalformed(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"title": "ok", "goals": [{"day": 1, "portions": [{"bookIdx": 0, "chapter": 1}]}]}`)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer bad.Close()
	gone := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer gone.Close()

	svc := newTestService(t)
	plans := svc.LoadCatalog(context.Background(), []string{good.URL, bad.URL, gone.URL})

	require.Len(t, plans, 1)
	assert.Equal(t, "ok", plans[0].Title)
}

func TestRefreshStatusLate(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()
	// Started ten days ago with only one day completed.
	plan.StartedAt = time.Now().UTC().Add(-10 * 24 * time.Hour).Format(time.RFC3339)

	svc.refreshStatus(plan)
	assert.Equal(t, domain.PlanLate, plan.Status)
}

func TestRefreshStatusNotStarted(t *testing.T) {
	svc := newTestService(t)
	plan := twoDayPlan()
	plan.Goals[0].Completed = false
	for j := range plan.Goals[0].Portions {
		plan.Goals[0].Portions[j].Completed = false
	}

	svc.refreshStatus(plan)
	assert.Equal(t, domain.PlanNotStarted, plan.Status)
}
