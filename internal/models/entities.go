// internal/models/entities.go
package models

import "time"

// Read-only lookup shapes for the business entities referenced by event
// payloads. Owned and persisted by the CRUD layer; the delivery engine only
// fetches them by id for variable enrichment.

type User struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId,omitempty"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Role           string `json:"role"`
	Locale         string `json:"locale,omitempty"`
}

type Client struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (c Client) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Vehicle struct {
	ID           string `json:"id"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

type WorkOrder struct {
	ID          string     `json:"id"`
	Number      string     `json:"number"`
	Status      string     `json:"status"`
	ClientID    string     `json:"clientId,omitempty"`
	VehicleID   string     `json:"vehicleId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type Invoice struct {
	ID       string     `json:"id"`
	Number   string     `json:"number"`
	Total    float64    `json:"total"`
	Currency string     `json:"currency"`
	DueDate  *time.Time `json:"dueDate,omitempty"`
}

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
