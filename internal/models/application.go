package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPremium is the cost of one application in points.
const DefaultPremium int64 = 9500

// ApplicationStatus is the lifecycle state of an insurance application.
type ApplicationStatus string

const (
	StatusSubmitted       ApplicationStatus = "submitted"
	StatusPartnerApproved ApplicationStatus = "partner_approved"
	StatusActive          ApplicationStatus = "active"
	StatusTerminated      ApplicationStatus = "terminated"
)

var statusRank = map[ApplicationStatus]int{
	StatusSubmitted:       0,
	StatusPartnerApproved: 1,
	StatusActive:          2,
	StatusTerminated:      3,
}

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank orders statuses; a status never moves to a lower rank.
func (s ApplicationStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to ApplicationStatus) bool {
	switch from {
	case StatusSubmitted:
		return to == StatusPartnerApproved
	case StatusPartnerApproved:
		return to == StatusActive || to == StatusTerminated
	case StatusActive:
		return to == StatusTerminated
	}
	return false
}

// Vehicle identifies the insured car.
type Vehicle struct {
	CarNumber   string `json:"car_number"`
	VehicleName string `json:"vehicle_name"`
	VIN         string `json:"vin,omitempty"`
}

// InsuranceApplication is one short-term liability insurance request.
// PointDeducted is tracked apart from Status: an operator may replay a
// status without charging the member again.
type InsuranceApplication struct {
	ID               uuid.UUID         `json:"id"`
	PartnerGroupID   uuid.UUID         `json:"partner_group_id"`
	CreatedBy        uuid.UUID         `json:"created_by"`
	Vehicle          Vehicle           `json:"vehicle"`
	DesiredStartDate time.Time         `json:"desired_start_date"`
	Premium          int64             `json:"premium"`
	Status           ApplicationStatus `json:"status"`
	PointDeducted    bool              `json:"point_deducted"`
	Memo             string            `json:"memo,omitempty"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	ActivatedAt      *time.Time        `json:"activated_at,omitempty"`
	TerminatedAt     *time.Time        `json:"terminated_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ApplicationFilter narrows List queries. Zero values match everything.
type ApplicationFilter struct {
	PartnerGroupID *uuid.UUID
	CreatedBy      *uuid.UUID
	Status         ApplicationStatus
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	Limit          int
	Offset         int
}
