package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []ApplicationStatus{StatusSubmitted, StatusPartnerApproved, StatusActive, StatusTerminated}
	allowed := map[[2]ApplicationStatus]bool{
		{StatusSubmitted, StatusPartnerApproved}:  true,
		{StatusPartnerApproved, StatusActive}:     true,
		{StatusPartnerApproved, StatusTerminated}: true,
		{StatusActive, StatusTerminated}:          true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]ApplicationStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if want {
				assert.Greater(t, to.Rank(), from.Rank(), "edges only move forward")
			}
		}
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.False(t, ApplicationStatus("cancelled").Valid())
	assert.Equal(t, -1, ApplicationStatus("cancelled").Rank())
}

func TestMemberHelpers(t *testing.T) {
	root := &Member{}
	assert.True(t, root.IsRoot())
	assert.Equal(t, uuid.Nil, root.PartnerID())
	assert.True(t, root.Prepaid(), "an empty settlement method defaults to points")

	p := uuid.New()
	m := &Member{PartnerGroupID: &p, SettlementMethod: SettlementPostpaid}
	assert.False(t, m.IsRoot())
	assert.Equal(t, p, m.PartnerID())
	assert.False(t, m.Prepaid())
}
