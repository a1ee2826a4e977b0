package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mileage-service/internal/api/dto"
	"github.com/spec-kit/mileage-service/internal/domain"
	"github.com/spec-kit/mileage-service/internal/repository"
	"github.com/spec-kit/mileage-service/internal/service"
	apperrors "github.com/spec-kit/mileage-service/pkg/util"
)

// MembersHandler exposes member and mileage endpoints.
type MembersHandler struct {
	members *service.MemberService
}

// NewMembersHandler constructs handler.
func NewMembersHandler(members *service.MemberService) *MembersHandler {
	return &MembersHandler{members: members}
}

// List handles GET /api/members. Soft-deleted members are excluded unless
// the deleted=true or deleted=all query flag asks for them.
func (h *MembersHandler) List(c *fiber.Ctx) error {
	filter := repository.MemberFilter{
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("offset", 0),
	}
	switch c.Query("deleted") {
	case "true":
		filter.OnlyDeleted = true
	case "all":
		filter.IncludeDeleted = true
	}

	members, err := h.members.List(c.UserContext(), filter)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponses(members)})
}

// Get handles GET /api/members/:id.
func (h *MembersHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	member, err := h.members.GetByID(c.UserContext(), id)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// GetByEmail handles GET /api/members/email/:email. The include_deleted=true
// query flag switches to the lookup that sees soft-deleted rows.
func (h *MembersHandler) GetByEmail(c *fiber.Ctx) error {
	email := c.Params("email")

	var member *domain.Member
	var err error
	if c.Query("include_deleted") == "true" {
		member, err = h.members.GetByEmailIncludingDeleted(c.UserContext(), email)
	} else {
		member, err = h.members.GetByEmail(c.UserContext(), email)
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// CheckEmail handles GET /api/members/check-email/:email.
func (h *MembersHandler) CheckEmail(c *fiber.Ctx) error {
	exists, err := h.members.EmailExists(c.UserContext(), c.Params("email"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"exists": exists}})
}

// Search handles GET /api/members/search?name=.
func (h *MembersHandler) Search(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return apperrors.NewValidationError("name query parameter required", nil)
	}
	members, err := h.members.SearchByName(c.UserContext(), name)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponses(members)})
}

// ByTier handles GET /api/members/tier/:tier.
func (h *MembersHandler) ByTier(c *fiber.Ctx) error {
	tier, ok := domain.ParseTier(c.Params("tier"))
	if !ok {
		return apperrors.NewValidationError("unknown tier", map[string]any{"tier": c.Params("tier")})
	}
	members, err := h.members.ListByTier(c.UserContext(), tier)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponses(members)})
}

// ByMileageRange handles GET /api/members/mileage?min=&max=.
func (h *MembersHandler) ByMileageRange(c *fiber.Ctx) error {
	min := c.QueryInt("min", -1)
	max := c.QueryInt("max", -1)
	if min < 0 || max < 0 {
		return apperrors.NewValidationError("min and max query parameters required", nil)
	}
	members, err := h.members.ListByMileageRange(c.UserContext(), min, max)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponses(members)})
}

// TopMileage handles GET /api/members/top-mileage.
func (h *MembersHandler) TopMileage(c *fiber.Ctx) error {
	members, err := h.members.TopByMileage(c.UserContext(), c.QueryInt("n", 0))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponses(members)})
}

// Statistics handles GET /api/members/statistics.
func (h *MembersHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.members.GetStatistics(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.StatisticsResponse{
		Active:  stats.Active,
		Deleted: stats.Deleted,
		Total:   stats.Total,
		Summary: stats.Summary(),
	}})
}

// Update handles PUT /api/members/:id.
func (h *MembersHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.ProfileUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	member, err := h.members.UpdateProfile(c.UserContext(), id, service.ProfileUpdateInput{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// Delete handles DELETE /api/members/:id (soft delete).
func (h *MembersHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.members.Delete(c.UserContext(), id); err != nil {
		return apperrors.MapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Restore handles POST /api/members/:id/restore.
func (h *MembersHandler) Restore(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	member, err := h.members.Restore(c.UserContext(), id)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// Accrue handles POST /api/members/:id/mileage/accrue.
func (h *MembersHandler) Accrue(c *fiber.Ctx) error {
	return h.applyMileage(c, h.members.Accrue)
}

// Redeem handles POST /api/members/:id/mileage/redeem.
func (h *MembersHandler) Redeem(c *fiber.Ctx) error {
	return h.applyMileage(c, h.members.Redeem)
}

func (h *MembersHandler) applyMileage(c *fiber.Ctx, op func(ctx context.Context, id int64, input service.MileageInput) (*domain.Member, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dto.MileageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	member, err := op(c.UserContext(), id, service.MileageInput{Amount: req.Amount, Reason: req.Reason})
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// History handles GET /api/members/:id/mileage/history.
func (h *MembersHandler) History(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	txs, err := h.members.MileageHistory(c.UserContext(), id, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewMileageTransactionResponses(txs)})
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid member id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}
