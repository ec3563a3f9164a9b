// Package fleet is the HTTP client for the FlotteQ core API: the
// tenant's vehicles, partner garage availability, and booking creation.
package fleet

import "fmt"

// Vehicle is one of the requesting user's vehicles.
type Vehicle struct {
	ID           string `json:"id"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Registration string `json:"registration"`
}

// Label returns the display label used in booking summaries.
func (v Vehicle) Label() string {
	return fmt.Sprintf("%s %s (%s)", v.Brand, v.Model, v.Registration)
}

// Slot is a bookable time window reported by the core API for a given
// (partner, service, date). Times are "HH:MM" on that date.
type Slot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

// BookingRequest is the payload for booking creation. CustomerNotes is
// omitted when empty.
type BookingRequest struct {
	PartnerID     string `json:"partnerId"`
	ServiceID     string `json:"serviceId"`
	VehicleID     string `json:"vehicleId"`
	ScheduledDate string `json:"scheduledDate"`
	ScheduledTime string `json:"scheduledTime"`
	EndTime       string `json:"endTime"`
	CustomerNotes string `json:"customerNotes,omitempty"`
}

// Booking is the created booking returned by the core API.
type Booking struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PartnerID     string `json:"partnerId"`
	ServiceID     string `json:"serviceId"`
	VehicleID     string `json:"vehicleId"`
	ScheduledDate string `json:"scheduledDate"`
	ScheduledTime string `json:"scheduledTime"`
	EndTime       string `json:"endTime"`
}

type vehiclesResponse struct {
	Vehicles []Vehicle `json:"vehicles"`
}

type slotsResponse struct {
	Slots []Slot `json:"slots"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
