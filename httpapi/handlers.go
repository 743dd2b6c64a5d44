package httpapi

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"dealflow/auth"
	"dealflow/deal"
	"dealflow/referral"
	"dealflow/report"
)

func bindBody(c fiber.Ctx, out any) error {
	if err := c.Bind().Body(out); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return NewAppError(fiber.StatusBadRequest, vErr.Message, err)
		}
		return NewAppError(fiber.StatusBadRequest, msgBadRequest, err)
	}
	return nil
}

func viewer(c fiber.Ctx) (auth.Claims, error) {
	claims, ok := claimsFrom(c)
	if !ok {
		return auth.Claims{}, NewAppError(fiber.StatusUnauthorized, msgMissingToken, nil)
	}
	return claims, nil
}

func (s *Server) handleRegister(c fiber.Ctx) error {
	var req registerRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	res, err := s.auth.Register(c.Context(), auth.RegisterRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return domainError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toAuthResponse(res))
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	res, err := s.auth.Login(c.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return domainError(err)
	}

	return c.JSON(toAuthResponse(res))
}

func (s *Server) handleMe(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}
	return c.JSON(userResponse{ID: claims.UserID, Email: claims.Email, Name: claims.Name})
}

func (s *Server) handleListReferrals(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	refs, err := s.referrals.List(c.Context(), claims.UserID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(toReferralResponses(refs))
}

func (s *Server) handleCreateReferral(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	var req createReferralRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	created, err := s.referrals.Create(c.Context(), claims.UserID, referral.CreateParams{
		ReferringCompany: req.ReferringCompany,
		ClientName:       req.ClientName,
		ContactPerson:    req.ContactPerson,
		ContactEmail:     req.ContactEmail,
		ContactPhone:     req.ContactPhone,
		Service:          req.Service,
		Status:           referral.Status(req.Status),
		Notes:            req.Notes,
	})
	if err != nil {
		return domainError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toReferralResponse(created))
}

func (s *Server) handleListDeals(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	deals, err := s.deals.List(c.Context(), claims.UserID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(toDealResponses(deals))
}

func (s *Server) handleCreateDeal(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	var req createDealRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	created, err := s.deals.Create(c.Context(), claims.UserID, deal.CreateParams{
		Title:             req.Title,
		ReferralID:        req.ReferralID,
		Value:             req.Value,
		ClientName:        req.ClientName,
		Stage:             deal.Stage(req.Stage),
		ExpectedCloseDate: req.ExpectedCloseDate,
		Description:       req.Description,
	})
	if err != nil {
		return domainError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toDealResponse(created))
}

func (s *Server) handleReferralReport(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	refs, err := s.reports.Referrals(c.Context(), claims.UserID, c.Query("sortBy"))
	if err != nil {
		return domainError(err)
	}

	if report.ParseFormat(c.Query("format")) == report.FormatCSV {
		var buf bytes.Buffer
		if err := report.WriteReferralsCSV(&buf, refs); err != nil {
			return domainError(err)
		}
		return sendCSV(c, "referrals", buf.Bytes())
	}
	return c.JSON(toReferralResponses(refs))
}

func (s *Server) handleDealReport(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	deals, err := s.reports.Deals(c.Context(), claims.UserID, c.Query("sortBy"))
	if err != nil {
		return domainError(err)
	}

	if report.ParseFormat(c.Query("format")) == report.FormatCSV {
		var buf bytes.Buffer
		if err := report.WriteDealsCSV(&buf, deals); err != nil {
			return domainError(err)
		}
		return sendCSV(c, "deals", buf.Bytes())
	}
	return c.JSON(toDealResponses(deals))
}

func sendCSV(c fiber.Ctx, kind string, body []byte) error {
	c.Attachment(report.Filename(kind))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(body)
}

func (s *Server) handleStats(c fiber.Ctx) error {
	claims, err := viewer(c)
	if err != nil {
		return err
	}

	stats, err := s.stats.Stats(c.Context(), claims.UserID)
	if err != nil {
		return domainError(err)
	}
	return c.JSON(stats)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	if s.health == nil {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("health: database ping failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
