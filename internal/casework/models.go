package casework

import "time"

// ChecklistStatus tracks the progress of a case's information-gathering and
// scope-definition checklists. Derived from item counts, never set directly.
type ChecklistStatus string

const (
	ChecklistPending    ChecklistStatus = "pending"
	ChecklistInProgress ChecklistStatus = "in_progress"
	ChecklistCompleted  ChecklistStatus = "completed"
)

// Case is a request under management.
type Case struct {
	ID                    int64
	Title                 string
	Status                Status
	HeldStatus            Status
	ReadinessScore        int
	InfoGatheringStatus   ChecklistStatus
	ScopeDefinitionStatus ChecklistStatus
	MissingInformation    []string
	LastContactAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// StatusHistoryEntry records one committed transition. SignalEmitted stays
// false until the transition's signal event has been durably appended; the
// reconciler replays entries where it never flipped.
type StatusHistoryEntry struct {
	ID            int64
	CaseID        int64
	FromStatus    Status
	ToStatus      Status
	ChangedBy     string
	ChangedAt     time.Time
	Reason        string
	SignalEmitted bool
}

// InformationItem is one required piece of client information.
type InformationItem struct {
	ID        int64
	CaseID    int64
	Name      string
	Required  bool
	Received  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScopeItem is one node of the scope tree. ParentID is nil for category
// roots; children refine their parent (category, system, item).
type ScopeItem struct {
	ID        int64
	CaseID    int64
	ParentID  *int64
	Name      string
	Required  bool
	Approved  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChecklistCounts aggregates required/done item counts for one checklist.
type ChecklistCounts struct {
	Required int
	Done     int
}

// Ratio returns completion in [0,1]. An empty checklist counts as zero:
// readiness has to be demonstrated by items, not by their absence.
func (c ChecklistCounts) Ratio() float64 {
	if c.Required == 0 {
		return 0
	}
	return float64(c.Done) / float64(c.Required)
}

// DerivedStatus maps counts onto the checklist status surfaced on the case.
func (c ChecklistCounts) DerivedStatus() ChecklistStatus {
	switch {
	case c.Required == 0 || c.Done == 0:
		return ChecklistPending
	case c.Done >= c.Required:
		return ChecklistCompleted
	default:
		return ChecklistInProgress
	}
}
