package referral

import "time"

type Status string

const (
	StatusNew              Status = "new"
	StatusContacted        Status = "contacted"
	StatusMeetingScheduled Status = "meeting_scheduled"
	StatusQualified        Status = "qualified"
	StatusUnqualified      Status = "unqualified"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusMeetingScheduled, StatusQualified, StatusUnqualified:
		return true
	default:
		return false
	}
}

// Referral is a lead passed on by another company. Records are immutable once stored.
type Referral struct {
	ID               string
	ReferringCompany string
	ClientName       string
	ContactPerson    string
	ContactEmail     string
	ContactPhone     string
	// Service is free text; clients typically offer consultation, product, service
	// or partnership.
	Service   string
	Status    Status
	Notes     *string
	CreatedAt time.Time
	UserID    string
}

// CreateParams are the caller-supplied fields of a new referral.
type CreateParams struct {
	ReferringCompany string
	ClientName       string
	ContactPerson    string
	ContactEmail     string
	ContactPhone     string
	Service          string
	Status           Status
	Notes            *string
}
