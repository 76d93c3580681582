package adjustments_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tally/internal/adjustments"
	"github.com/JaimeStill/tally/internal/ledger"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to adjustments.Status
		ok       bool
	}{
		{adjustments.StatusDraft, adjustments.StatusPending, true},
		{adjustments.StatusPending, adjustments.StatusApproved, true},
		{adjustments.StatusPending, adjustments.StatusRejected, true},
		{adjustments.StatusApproved, adjustments.StatusDraft, false},
		{adjustments.StatusRejected, adjustments.StatusDraft, false},
		{adjustments.StatusDraft, adjustments.StatusApproved, false},
		{adjustments.StatusPending, adjustments.StatusDraft, false},
		{adjustments.StatusApproved, adjustments.StatusRejected, false},
		{adjustments.StatusDraft, "archived", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := adjustments.Transition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, adjustments.ErrInvalidTransition)
			assert.Equal(t, http.StatusUnprocessableEntity, adjustments.MapHTTPStatus(err))
		})
	}
}

func date(s string) *ledger.Date {
	d, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestDraft(t *testing.T) {
	deal := uuid.New()

	tests := []struct {
		name string
		cmd  adjustments.CreateCommand
		err  error
	}{
		{
			name: "defaults to manual",
			cmd:  adjustments.CreateCommand{Category: adjustments.CategoryOwnerCompensation, Description: "Owner salary above market"},
		},
		{
			name: "unknown category",
			cmd:  adjustments.CreateCommand{Category: "tax_planning", Description: "x"},
			err:  adjustments.ErrInvalidCategory,
		},
		{
			name: "unknown source",
			cmd:  adjustments.CreateCommand{Source: "email", Category: adjustments.CategoryOther, Description: "x"},
			err:  adjustments.ErrInvalidSource,
		},
		{
			name: "blank description",
			cmd:  adjustments.CreateCommand{Category: adjustments.CategoryOther, Description: "  "},
			err:  adjustments.ErrDescriptionRequired,
		},
		{
			name: "period reversed",
			cmd: adjustments.CreateCommand{
				Category:    adjustments.CategoryOutOfPeriod,
				Description: "Prior year invoice",
				PeriodStart: date("2024-03-01"),
				PeriodEnd:   date("2024-02-01"),
			},
			err: adjustments.ErrInvalidPeriod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := adjustments.Draft(deal, "analyst@firm.test", tt.cmd)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, http.StatusBadRequest, adjustments.MapHTTPStatus(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, adjustments.StatusDraft, a.Status)
			assert.Equal(t, adjustments.SourceManual, a.Source)
			assert.Equal(t, "analyst@firm.test", a.CreatedBy)
		})
	}
}

func TestUpdateCommandApply(t *testing.T) {
	base := adjustments.Adjustment{
		Status:      adjustments.StatusDraft,
		Category:    adjustments.CategoryOther,
		Description: "Legal settlement",
		Amount:      decimal.RequireFromString("12000"),
	}

	amount := decimal.RequireFromString("15000.50")
	category := adjustments.CategoryNonRecurring
	out, err := adjustments.UpdateCommand{Amount: &amount, Category: &category}.Apply(base)
	require.NoError(t, err)
	assert.True(t, out.Amount.Equal(amount))
	assert.Equal(t, adjustments.CategoryNonRecurring, out.Category)
	assert.Equal(t, "Legal settlement", out.Description)
	assert.True(t, base.Amount.Equal(decimal.RequireFromString("12000")))

	blank := ""
	_, err = adjustments.UpdateCommand{Description: &blank}.Apply(base)
	assert.ErrorIs(t, err, adjustments.ErrDescriptionRequired)
}

func TestSuccessor(t *testing.T) {
	tx := uuid.New()
	a := adjustments.Adjustment{
		ID:          uuid.New(),
		DealID:      uuid.New(),
		Status:      adjustments.StatusRejected,
		Source:      adjustments.SourceDrillDown,
		Category:    adjustments.CategoryRelatedParty,
		Description: "Rent paid to owner entity",
		Amount:      decimal.RequireFromString("3000"),
		Links:       []uuid.UUID{tx},
		CreatedAt:   time.Now(),
	}

	next := a.Successor("reviewer@firm.test")
	assert.Equal(t, adjustments.StatusDraft, next.Status)
	assert.Equal(t, uuid.Nil, next.ID)
	require.NotNil(t, next.SourceRefID)
	assert.Equal(t, a.ID, *next.SourceRefID)
	assert.Equal(t, a.Source, next.Source)
	assert.Equal(t, []uuid.UUID{tx}, next.Links)
	assert.Equal(t, "reviewer@firm.test", next.CreatedBy)

	next.Links[0] = uuid.New()
	assert.Equal(t, tx, a.Links[0])
}
