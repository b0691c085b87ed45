// Package eligibility decides which stations may serve a service for a
// treatment type and customer type.
package eligibility

import (
	"sort"

	"stationbook/internal/model"
)

// Inputs is the raw row set needed to decide eligibility for one service.
type Inputs struct {
	Stations         []model.Station
	Matrix           []model.ServiceStationMatrix
	TreatmentRules   []model.StationTreatmentTypeRule
	AllowedCustomers []model.StationAllowedCustomerType
}

// Candidate is a station that passed every eligibility layer.
type Candidate struct {
	Station                 model.Station
	BaseTimeMinutes         int
	DurationModifierMinutes int
	RequiresStaffApproval   bool
	Price                   int64
}

// Request identifies what is being booked and by whom.
type Request struct {
	ServiceID       int64
	TreatmentTypeID int64
	CustomerTypeID  *int64
}

// Filter applies the service matrix, treatment-type rule and customer-type allow-list.
// A station without a rule for the treatment type is excluded.
func Filter(req Request, in Inputs) []Candidate {
	matrix := make(map[int64]model.ServiceStationMatrix, len(in.Matrix))
	for _, m := range in.Matrix {
		if m.ServiceID == req.ServiceID {
			matrix[m.StationID] = m
		}
	}

	rules := make(map[int64]model.StationTreatmentTypeRule, len(in.TreatmentRules))
	for _, r := range in.TreatmentRules {
		if r.TreatmentTypeID == req.TreatmentTypeID {
			rules[r.StationID] = r
		}
	}

	allowed := make(map[int64]map[int64]struct{})
	for _, a := range in.AllowedCustomers {
		set, ok := allowed[a.StationID]
		if !ok {
			set = make(map[int64]struct{})
			allowed[a.StationID] = set
		}
		set[a.CustomerTypeID] = struct{}{}
	}

	var out []Candidate
	for _, st := range in.Stations {
		if !st.IsActive {
			continue
		}
		m, ok := matrix[st.ID]
		if !ok {
			continue
		}
		rule, ok := rules[st.ID]
		if !ok || !rule.IsActive || !rule.RemoteBookingAllowed {
			continue
		}
		if !customerAllowed(allowed[st.ID], req.CustomerTypeID) {
			continue
		}
		out = append(out, Candidate{
			Station:                 st,
			BaseTimeMinutes:         m.BaseTimeMinutes,
			DurationModifierMinutes: rule.DurationModifierMinutes,
			RequiresStaffApproval:   rule.RequiresStaffApproval,
			Price:                   m.Price,
		})
	}

	SortCandidates(out)
	return out
}

// SortCandidates orders by display order, then station ID.
func SortCandidates(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Station, list[j].Station
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.ID < b.ID
	})
}

// customerAllowed: an empty allow-list means unrestricted.
func customerAllowed(set map[int64]struct{}, customerTypeID *int64) bool {
	if len(set) == 0 {
		return true
	}
	if customerTypeID == nil {
		return false
	}
	_, ok := set[*customerTypeID]
	return ok
}
