package models

import "time"

type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCardType map[string]int `json:"by_card_type"`
	ByCategory map[string]int `json:"by_category"`
}

func NewStatistics() *Statistics {
	return &Statistics{
		ByStatus:   make(map[string]int),
		ByCardType: make(map[string]int),
		ByCategory: make(map[string]int),
	}
}

// Add counts one application.
func (s *Statistics) Add(a *Application) {
	s.Total++
	status := a.Status
	if status == "" {
		status = StatusPending
	}
	s.ByStatus[string(status)]++
	if a.CardType != "" {
		s.ByCardType[string(a.CardType)]++
	}
	if a.Category != "" {
		s.ByCategory[a.Category]++
	}
}

const (
	ReportSourceRemote = "remote"
	ReportSourceLocal  = "local"
)

// PeriodReport summarizes applications submitted inside [From, To).
type PeriodReport struct {
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	New      int         `json:"new"`
	Approved int         `json:"approved"`
	Rejected int         `json:"rejected"`
	Pending  int         `json:"pending"`
	Totals   *Statistics `json:"totals,omitempty"`
	Source   string      `json:"source"`
}
