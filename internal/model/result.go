package model

import "time"

type ItemOutcome string

const (
	OutcomeSuccess ItemOutcome = "success"
	OutcomeFailed  ItemOutcome = "failed"
	OutcomeSkipped ItemOutcome = "skipped"
)

// ItemResult is the per-item entry in a queue run summary.
type ItemResult struct {
	ItemID            string      `json:"itemId"`
	Status            ItemOutcome `json:"status"`
	Error             string      `json:"error,omitempty"`
	ProviderMessageID string      `json:"providerMessageId,omitempty"`
	RetryCount        int         `json:"retryCount,omitempty"`
}

// RunSummary aggregates one queue processor invocation.
type RunSummary struct {
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
	Results    []ItemResult  `json:"results"`
}

func (s *RunSummary) Add(r ItemResult) {
	s.Processed++
	switch r.Status {
	case OutcomeSuccess:
		s.Successful++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

type RenewalStatus string

const (
	RenewalRenewed RenewalStatus = "renewed"
	RenewalFailed  RenewalStatus = "failed"
)

// RenewalResult is the per-mailbox entry in a lifecycle run summary.
type RenewalResult struct {
	MailboxID  string        `json:"mailboxId"`
	Status     RenewalStatus `json:"status"`
	Expiration *time.Time    `json:"expiration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// RenewalSummary aggregates one lifecycle manager invocation.
type RenewalSummary struct {
	Renewed int             `json:"renewed"`
	Failed  int             `json:"failed"`
	Total   int             `json:"total"`
	Results []RenewalResult `json:"results"`
}

func (s *RenewalSummary) Add(r RenewalResult) {
	s.Total++
	if r.Status == RenewalRenewed {
		s.Renewed++
	} else {
		s.Failed++
	}
	s.Results = append(s.Results, r)
}
