package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
)

const membersSheet = "Members"

var membersHeader = []any{
	"code", "name", "phone", "plan", "plan_type", "status",
	"sessions_left", "days_left", "expires_at", "debt", "frozen_since",
}

// Members writes the roster as an xlsx workbook with one row per member.
func Members(w io.Writer, views []members.View) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), membersSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(membersSheet, "A1", &membersHeader); err != nil {
		return err
	}

	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			v.Code,
			v.Name,
			v.Phone,
			v.PlanName,
			string(v.ResolvedPlan),
			string(v.Status),
			sessionsCell(v),
			daysCell(v),
			timeCell(v.ExpiresAt),
			v.Debt.InexactFloat64(),
			timeCell(v.FrozenAt),
		}
		if err := f.SetSheetRow(membersSheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func sessionsCell(v members.View) any {
	if v.ResolvedPlan == members.PlanSubscription {
		return ""
	}
	return v.SessionsRemaining
}

func daysCell(v members.View) any {
	switch {
	case v.DaysRemaining == nil:
		return ""
	case v.Unlimited:
		return "unlimited"
	default:
		return *v.DaysRemaining
	}
}

func timeCell(t *time.Time) any {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
