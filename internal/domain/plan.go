package domain

// PlanStatus describes where a reading plan stands.
type PlanStatus string

const (
	PlanNotStarted PlanStatus = "not started"
	PlanStarted    PlanStatus = "started"
	PlanLate       PlanStatus = "late"
	PlanCompleted  PlanStatus = "completed"
)

// ReadingPortion is one chapter assignment within a daily goal.
type ReadingPortion struct {
	BookIndex int  `json:"bookIdx"`
	Chapter   int  `json:"chapter"`
	Completed bool `json:"completed,omitempty"`
}

// DailyGoal is one day's reading assignment. A goal is completed
// iff all of its portions are.
type DailyGoal struct {
	Title     string           `json:"title,omitempty"`
	Day       int              `json:"day"` // 1-based
	Portions  []ReadingPortion `json:"portions"`
	Completed bool             `json:"completed,omitempty"`
}

// Plan is a multi-day reading schedule with completion state.
// Invariant: len(Goals) == Days.
type Plan struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Author      string      `json:"author,omitempty"`
	Description string      `json:"description,omitempty"`
	Days        int         `json:"days"`
	Goals       []DailyGoal `json:"goals"`
	StartedAt   string      `json:"startedAt,omitempty"` // RFC 3339
	Status      PlanStatus  `json:"status,omitempty"`
}

// Position points at a goal/portion pair within a plan.
type Position struct {
	Day          int // 1-based, -1 when the plan is fully completed
	PortionIndex int
}
