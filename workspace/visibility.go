// Package workspace holds the record visibility policy shared by the referral and
// deal stores.
//
// The CRM runs as one shared workspace: every authenticated user reads every
// referral and deal regardless of who created it. OwnerOnly exists so the policy is
// a visible, switchable decision rather than a missing WHERE clause.
package workspace

import "fmt"

type Visibility int

const (
	// Shared exposes all records to every authenticated caller.
	Shared Visibility = iota
	// OwnerOnly restricts reads to records owned by the caller.
	OwnerOnly
)

func (v Visibility) String() string {
	switch v {
	case Shared:
		return "shared"
	case OwnerOnly:
		return "owner_only"
	default:
		return fmt.Sprintf("visibility(%d)", int(v))
	}
}

// Scope is the resolved read scope for a single request.
type Scope struct {
	Visibility Visibility
	ViewerID   string
}

// For resolves the scope of viewerID under the policy.
func (v Visibility) For(viewerID string) Scope {
	return Scope{Visibility: v, ViewerID: viewerID}
}

// Where returns a SQL predicate for the owner column and its arguments, numbering
// placeholders from firstArg. Shared scopes yield an always-true predicate.
func (s Scope) Where(ownerColumn string, firstArg int) (string, []any) {
	if s.Visibility == OwnerOnly {
		return fmt.Sprintf("%s = $%d", ownerColumn, firstArg), []any{s.ViewerID}
	}
	return "TRUE", nil
}
