package httpapi

import (
	"time"

	"dealflow/auth"
	"dealflow/deal"
	"dealflow/referral"
)

// Request bodies use the camelCase names sent by the web client.

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type createReferralRequest struct {
	ReferringCompany string  `json:"referringCompany" validate:"required,min=2"`
	ClientName       string  `json:"clientName" validate:"required,min=2"`
	ContactPerson    string  `json:"contactPerson" validate:"required,min=2"`
	ContactEmail     string  `json:"contactEmail" validate:"required,email"`
	ContactPhone     string  `json:"contactPhone" validate:"required,min=5"`
	Service          string  `json:"service" validate:"required"`
	Status           string  `json:"status"`
	Notes            *string `json:"notes"`
}

type createDealRequest struct {
	Title             string  `json:"title" validate:"required,min=2"`
	ReferralID        *string `json:"referralId"`
	Value             string  `json:"value" validate:"required"`
	ClientName        string  `json:"clientName" validate:"required,min=2"`
	Stage             string  `json:"stage"`
	ExpectedCloseDate string  `json:"expectedCloseDate" validate:"required"`
	Description       *string `json:"description"`
}

// Responses use the stored column names.

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type referralResponse struct {
	ID               string    `json:"id"`
	ReferringCompany string    `json:"referring_company"`
	ClientName       string    `json:"client_name"`
	ContactPerson    string    `json:"contact_person"`
	ContactEmail     string    `json:"contact_email"`
	ContactPhone     string    `json:"contact_phone"`
	Service          string    `json:"service"`
	Status           string    `json:"status"`
	Notes            *string   `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
	UserID           string    `json:"user_id"`
}

type dealResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	ReferralID        *string   `json:"referral_id"`
	Value             string    `json:"value"`
	ClientName        string    `json:"client_name"`
	Stage             string    `json:"stage"`
	ExpectedCloseDate string    `json:"expected_close_date"`
	Description       *string   `json:"description"`
	CreatedAt         time.Time `json:"created_at"`
	UserID            string    `json:"user_id"`
}

func toAuthResponse(res auth.LoginResult) authResponse {
	return authResponse{
		Token: res.Token,
		User: userResponse{
			ID:    res.User.ID,
			Email: res.User.Email,
			Name:  res.User.Name,
		},
	}
}

func toReferralResponse(r referral.Referral) referralResponse {
	return referralResponse{
		ID:               r.ID,
		ReferringCompany: r.ReferringCompany,
		ClientName:       r.ClientName,
		ContactPerson:    r.ContactPerson,
		ContactEmail:     r.ContactEmail,
		ContactPhone:     r.ContactPhone,
		Service:          r.Service,
		Status:           string(r.Status),
		Notes:            r.Notes,
		CreatedAt:        r.CreatedAt,
		UserID:           r.UserID,
	}
}

func toReferralResponses(refs []referral.Referral) []referralResponse {
	out := make([]referralResponse, 0, len(refs))
	for _, r := range refs {
		out = append(out, toReferralResponse(r))
	}
	return out
}

func toDealResponse(d deal.Deal) dealResponse {
	return dealResponse{
		ID:                d.ID,
		Title:             d.Title,
		ReferralID:        d.ReferralID,
		Value:             d.Value,
		ClientName:        d.ClientName,
		Stage:             string(d.Stage),
		ExpectedCloseDate: d.ExpectedCloseDate.Format(deal.DateLayout),
		Description:       d.Description,
		CreatedAt:         d.CreatedAt,
		UserID:            d.UserID,
	}
}

func toDealResponses(deals []deal.Deal) []dealResponse {
	out := make([]dealResponse, 0, len(deals))
	for _, d := range deals {
		out = append(out, toDealResponse(d))
	}
	return out
}
