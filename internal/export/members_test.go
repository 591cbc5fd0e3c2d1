package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/domain/members"
)

func TestMembersWorkbook(t *testing.T) {
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	exp := now.Add(3 * members.Day)
	forever := now.Add((members.UnlimitedDays + 10) * members.Day)

	views := []members.View{
		members.NewView(members.Member{
			ID: uuid.New(), Code: "01", Name: "Ana", PlanType: members.PlanSubscription,
			PlanName: "Monthly", ExpiresAt: &exp, Debt: decimal.RequireFromString("15.5"),
		}, now),
		members.NewView(members.Member{
			ID: uuid.New(), Name: "Ben", PlanType: members.PlanPackage, PlanName: "10 visits",
			SessionsTotal: 10, SessionsUsed: 4, Debt: decimal.Zero,
		}, now),
		members.NewView(members.Member{
			ID: uuid.New(), Name: "Cy", PlanType: members.PlanSubscription, ExpiresAt: &forever, Debt: decimal.Zero,
		}, now),
	}

	var buf bytes.Buffer
	require.NoError(t, Members(&buf, views))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(membersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "code", rows[0][0])
	assert.Equal(t, "frozen_since", rows[0][len(rows[0])-1])

	ana := rows[1]
	assert.Equal(t, []string{"01", "Ana", "", "Monthly", "subscription", "expiring_soon", "", "3", "2025-02-04 09:00", "15.5"}, ana[:10])

	ben := rows[2]
	assert.Equal(t, "package", ben[4])
	assert.Equal(t, "active", ben[5])
	assert.Equal(t, "6", ben[6])

	assert.Equal(t, "unlimited", rows[3][7])
}

func TestMembersEmptyRoster(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Members(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(membersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
