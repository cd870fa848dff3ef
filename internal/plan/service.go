// Package plan manages reading plans: persistence, remote import, and
// the completion roll-up driven by playback-end events.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nlabs/audiobible/internal/domain"
)

const fetchTimeout = 30 * time.Second

// Service orchestrates plan storage and progress tracking.
type Service struct {
	store      domain.Store
	httpClient *http.Client
	logger     *slog.Logger
}

func NewService(store domain.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		httpClient: &http.Client{Timeout: fetchTimeout},
		logger:     logger,
	}
}

// StoppedAt returns the first incomplete goal/portion pair scanning
// from day 1. A fully completed plan yields Day == -1.
func (s *Service) StoppedAt(plan *domain.Plan) domain.Position {
	for i := range plan.Goals {
		goal := &plan.Goals[i]
		if goal.Completed {
			continue
		}
		for j := range goal.Portions {
			if !goal.Portions[j].Completed {
				return domain.Position{Day: goal.Day, PortionIndex: j}
			}
		}
		// Goal not flagged completed but every portion is: resume at it.
		return domain.Position{Day: goal.Day, PortionIndex: 0}
	}
	return domain.Position{Day: -1, PortionIndex: 0}
}

// === CRUD ===

func (s *Service) Save(plan *domain.Plan) error {
	return s.store.PutPlan(plan)
}

func (s *Service) Get(id string) (*domain.Plan, error) {
	plan, ok := s.store.GetPlan(id)
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", domain.ErrNotFound, id)
	}
	return plan, nil
}

func (s *Service) GetAll() []*domain.Plan {
	return s.store.AllPlans()
}

func (s *Service) Delete(id string) error {
	return s.store.DeletePlan(id)
}

// === Remote import ===

// ImportFromURL fetches a plan document, strips any completion state it
// carries, and persists it as a fresh not-started plan.
func (s *Service) ImportFromURL(ctx context.Context, planURL string) (*domain.Plan, error) {
	plan, err := s.fetch(ctx, planURL)
	if err != nil {
		return nil, err
	}

	for i := range plan.Goals {
		plan.Goals[i].Completed = false
		for j := range plan.Goals[i].Portions {
			plan.Goals[i].Portions[j].Completed = false
		}
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.Days == 0 {
		plan.Days = len(plan.Goals)
	}
	plan.Status = domain.PlanNotStarted
	plan.StartedAt = time.Now().UTC().Format(time.RFC3339)

	if err := s.Save(plan); err != nil {
		return nil, err
	}
	s.logger.Info("imported plan", "id", plan.ID, "title", plan.Title, "days", plan.Days)
	return plan, nil
}

// LoadCatalog fetches a list of plan documents. Malformed documents are
// skipped with a logged warning rather than aborting the whole list.
func (s *Service) LoadCatalog(ctx context.Context, urls []string) []*domain.Plan {
	var plans []*domain.Plan
	for _, u := range urls {
		plan, err := s.fetch(ctx, u)
		if err != nil {
			s.logger.Warn("skipping malformed plan document", "url", u, "error", err)
			continue
		}
		plans = append(plans, plan)
	}
	return plans
}

func (s *Service) fetch(ctx context.Context, planURL string) (*domain.Plan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, planURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	var plan domain.Plan
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, fmt.Errorf("invalid plan document: %w", err)
	}
	if len(plan.Goals) == 0 {
		return nil, fmt.Errorf("invalid plan document: no goals")
	}
	return &plan, nil
}

// === Progress tracking ===

// MarkCompleted flags the matching portion complete, rolls completion
// up to its goal and the plan status, and persists the plan. Wired to
// the playback engine's track-ended events by the embedding app.
func (s *Service) MarkCompleted(plan *domain.Plan, bookIndex, chapter int) error {
	changed := false
	for i := range plan.Goals {
		goal := &plan.Goals[i]
		for j := range goal.Portions {
			p := &goal.Portions[j]
			if p.BookIndex == bookIndex && p.Chapter == chapter && !p.Completed {
				p.Completed = true
				changed = true
			}
		}
		rollUpGoal(goal)
	}
	if !changed {
		return nil
	}
	s.refreshStatus(plan)
	return s.Save(plan)
}

// MarkDayCompleted flags a whole day's portions complete.
func (s *Service) MarkDayCompleted(plan *domain.Plan, day int) error {
	for i := range plan.Goals {
		goal := &plan.Goals[i]
		if goal.Day != day {
			continue
		}
		for j := range goal.Portions {
			goal.Portions[j].Completed = true
		}
		goal.Completed = true
		s.refreshStatus(plan)
		return s.Save(plan)
	}
	return fmt.Errorf("%w: day %d of plan %s", domain.ErrNotFound, day, plan.ID)
}

// DaysRemaining counts goals not yet completed.
func (s *Service) DaysRemaining(plan *domain.Plan) int {
	remaining := 0
	for i := range plan.Goals {
		if !plan.Goals[i].Completed {
			remaining++
		}
	}
	return remaining
}

// rollUpGoal keeps the goal flag consistent with its portions.
func rollUpGoal(goal *domain.DailyGoal) {
	if len(goal.Portions) == 0 {
		return
	}
	for _, p := range goal.Portions {
		if !p.Completed {
			goal.Completed = false
			return
		}
	}
	goal.Completed = true
}

// refreshStatus recomputes the plan status: completed when every goal
// is done, late when fewer days are completed than have elapsed since
// the start, started otherwise.
func (s *Service) refreshStatus(plan *domain.Plan) {
	completedDays := 0
	anyProgress := false
	for i := range plan.Goals {
		if plan.Goals[i].Completed {
			completedDays++
			anyProgress = true
			continue
		}
		for _, p := range plan.Goals[i].Portions {
			if p.Completed {
				anyProgress = true
				break
			}
		}
	}

	switch {
	case completedDays == len(plan.Goals):
		plan.Status = domain.PlanCompleted
	case !anyProgress:
		plan.Status = domain.PlanNotStarted
	case s.isLate(plan, completedDays):
		plan.Status = domain.PlanLate
	default:
		plan.Status = domain.PlanStarted
	}
}

func (s *Service) isLate(plan *domain.Plan, completedDays int) bool {
	if plan.StartedAt == "" {
		return false
	}
	started, err := time.Parse(time.RFC3339, plan.StartedAt)
	if err != nil {
		return false
	}
	elapsedDays := int(time.Since(started).Hours() / 24)
	return completedDays < elapsedDays
}
