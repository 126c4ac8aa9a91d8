package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/app/repository"
)

// ExportRequest narrows a CSV export. Dates are YYYY-MM-DD (to is inclusive)
// or RFC3339 timestamps (to is exclusive).
type ExportRequest struct {
	MemberID string `json:"member_id" form:"member_id"`
	Status   string `json:"status" form:"status"`
	From     string `json:"from" form:"from"`
	To       string `json:"to" form:"to"`
}

// Filter converts the request into a repository filter.
func (r ExportRequest) Filter() (repository.ListFilter, error) {
	filter := repository.ListFilter{MemberID: strings.TrimSpace(r.MemberID)}
	if r.Status != "" {
		status := models.OrderStatus(strings.ToLower(strings.TrimSpace(r.Status)))
		if !status.Valid() {
			return filter, fmt.Errorf("status must be one of pending, succeeded, failed")
		}
		filter.Status = status
	}
	if r.From != "" {
		from, _, err := parseExportTime(r.From)
		if err != nil {
			return filter, fmt.Errorf("from: %w", err)
		}
		filter.From = &from
	}
	if r.To != "" {
		to, dateOnly, err := parseExportTime(r.To)
		if err != nil {
			return filter, fmt.Errorf("to: %w", err)
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1)
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, fmt.Errorf("from must be before to")
	}
	return filter, nil
}

func parseExportTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UTC(), false, nil
}

// HandleExportPayments returns the matching orders as a CSV download. When
// S3 upload is enabled the same export is queued for upload and its object
// key is returned in X-Export-Object-Key.
func (pc *PaymentController) HandleExportPayments(c *fiber.Ctx) error {
	if pc.exporter == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Export not configured"})
	}

	var req ExportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
		}
	}
	filter, err := req.Filter()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := pc.requestContext(c)
	defer cancel()

	body, rows, err := pc.exporter.Render(ctx, filter)
	if err != nil {
		return pc.writeError(c, err, nil)
	}

	if pc.exporter.UploadEnabled() && pc.jobs != nil {
		key := pc.exporter.NewObjectKey()
		job, err := pc.jobs.EnqueueExport(ctx, filter, key)
		if err != nil {
			log.Errorf("[Export] Failed to queue upload of %s: %v", key, err)
		} else {
			c.Set("X-Export-Object-Key", key)
			c.Set("X-Export-Job-ID", job.ID)
		}
	}

	log.Infof("[Export] Rendered %d orders", rows)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, pc.exporter.FileName()))
	c.Set("X-Export-Rows", fmt.Sprint(rows))
	return c.Status(fiber.StatusOK).Send(body)
}
