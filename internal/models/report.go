package models

import "time"

// Report is everything one refresh produced; it is served until the next
// successful refresh replaces it.
type Report struct {
	RunID        string         `json:"run_id"`
	Today        time.Time      `json:"today"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Transactions []Transaction  `json:"transactions"`
	Cash         []CashMovement `json:"cash"`
	Tables       []Table        `json:"tables"`
	Holdings     []Snapshot     `json:"holdings"`
	Summaries    []Summary      `json:"summaries"`
	Exposure     Exposure       `json:"exposure"`
	Issues       []Issue        `json:"issues"`
}

// Table returns the daily table called name.
func (r *Report) Table(name string) (Table, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Snapshot returns the holdings of window.
func (r *Report) Snapshot(window string) (Snapshot, bool) {
	for _, s := range r.Holdings {
		if s.Window == window {
			return s, true
		}
	}
	return Snapshot{}, false
}

// Summary returns the cash summary of window.
func (r *Report) Summary(window string) (Summary, bool) {
	for _, s := range r.Summaries {
		if s.Window == window {
			return s, true
		}
	}
	return Summary{}, false
}

// Refresh run states.
const (
	RefreshRunning = "running"
	RefreshOK      = "ok"
	RefreshFailed  = "failed"
)

// Refresh is the bookkeeping row of one refresh attempt.
type Refresh struct {
	ID           string     `db:"id" json:"id"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Today        string     `db:"today" json:"today,omitempty"`
	Status       string     `db:"status" json:"status"`
	Transactions int        `db:"transactions" json:"transactions"`
	Dropped      int        `db:"dropped" json:"dropped"`
	Missing      int        `db:"missing" json:"missing"`
	Error        string     `db:"error" json:"error,omitempty"`
}
