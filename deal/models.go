package deal

import "time"

type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

func (s Stage) Valid() bool {
	switch s {
	case StageProspecting, StageQualification, StageProposal, StageNegotiation, StageClosedWon, StageClosedLost:
		return true
	default:
		return false
	}
}

// DateLayout is the wire and storage format of ExpectedCloseDate.
const DateLayout = "2006-01-02"

// Deal is a sales opportunity, optionally originating from a referral.
type Deal struct {
	ID    string
	Title string
	// ReferralID is a weak reference. It may point at a referral that no longer
	// exists, or at none at all.
	ReferralID *string
	// Value is a decimal kept as text. Rows written before validation existed may
	// hold anything; readers treat those as 0.
	Value             string
	ClientName        string
	Stage             Stage
	ExpectedCloseDate time.Time
	Description       *string
	CreatedAt         time.Time
	UserID            string
}

type CreateParams struct {
	Title             string
	ReferralID        *string
	Value             string
	ClientName        string
	Stage             Stage
	ExpectedCloseDate string
	Description       *string
}
