// Package report produces the sorted referral and deal reports and their CSV
// exports.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"dealflow/deal"
	"dealflow/referral"
)

// Format of a report response.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat maps a query value to a Format; anything unrecognised is JSON.
func ParseFormat(raw string) Format {
	if strings.EqualFold(strings.TrimSpace(raw), string(FormatCSV)) {
		return FormatCSV
	}
	return FormatJSON
}

type ReferralSource interface {
	ListSorted(ctx context.Context, viewerID, sortBy string) ([]referral.Referral, error)
}

type DealSource interface {
	ListSorted(ctx context.Context, viewerID, sortBy string) ([]deal.Deal, error)
}

type Service struct {
	referrals ReferralSource
	deals     DealSource
}

func NewService(referrals ReferralSource, deals DealSource) *Service {
	return &Service{referrals: referrals, deals: deals}
}

func (s *Service) Referrals(ctx context.Context, viewerID, sortBy string) ([]referral.Referral, error) {
	return s.referrals.ListSorted(ctx, viewerID, sortBy)
}

func (s *Service) Deals(ctx context.Context, viewerID, sortBy string) ([]deal.Deal, error) {
	return s.deals.ListSorted(ctx, viewerID, sortBy)
}

var referralColumns = []string{
	"id", "referring_company", "client_name", "contact_person", "contact_email",
	"contact_phone", "service", "status", "notes", "created_at", "user_id",
}

var dealColumns = []string{
	"id", "title", "referral_id", "value", "client_name", "stage",
	"expected_close_date", "description", "created_at", "user_id",
}

// WriteReferralsCSV writes a header row followed by one row per referral, in the
// order given.
func WriteReferralsCSV(w io.Writer, refs []referral.Referral) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(referralColumns); err != nil {
		return fmt.Errorf("report: write referral header: %w", err)
	}
	for _, r := range refs {
		row := []string{
			r.ID,
			r.ReferringCompany,
			r.ClientName,
			r.ContactPerson,
			r.ContactEmail,
			r.ContactPhone,
			r.Service,
			string(r.Status),
			deref(r.Notes),
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UserID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write referral %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDealsCSV writes a header row followed by one row per deal, in the order
// given.
func WriteDealsCSV(w io.Writer, deals []deal.Deal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(dealColumns); err != nil {
		return fmt.Errorf("report: write deal header: %w", err)
	}
	for _, d := range deals {
		row := []string{
			d.ID,
			d.Title,
			deref(d.ReferralID),
			d.Value,
			d.ClientName,
			string(d.Stage),
			d.ExpectedCloseDate.Format(deal.DateLayout),
			deref(d.Description),
			d.CreatedAt.UTC().Format(time.RFC3339),
			d.UserID,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write deal %s: %w", d.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename is the attachment name for a report kind, e.g. "deals_report.csv".
func Filename(kind string) string {
	return kind + "_report.csv"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
