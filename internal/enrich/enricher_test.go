// internal/enrich/enricher_test.go
package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/events"
	"autoshop-notifications/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type stubLookup struct {
	users      map[string]*models.User
	clients    map[string]*models.Client
	vehicles   map[string]*models.Vehicle
	workOrders map[string]*models.WorkOrder
	invoices   map[string]*models.Invoice
	branches   map[string]*models.Branch
	failAll    bool
}

var errLookupDown = errors.New("lookup backend down")

func (s *stubLookup) GetUser(ctx context.Context, id string) (*models.User, error) {
	if s.failAll {
		return nil, errLookupDown
	}
	return s.users[id], nil
}

func (s *stubLookup) GetClient(ctx context.Context, id string) (*models.Client, error) {
	if s.failAll {
		return nil, errLookupDown
	}
	return s.clients[id], nil
}

func (s *stubLookup) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	if s.failAll {
		return nil, errLookupDown
	}
	return s.vehicles[id], nil
}

func (s *stubLookup) GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error) {
	if s.failAll {
		return nil, errLookupDown
	}
	return s.workOrders[id], nil
}

func (s *stubLookup) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	if s.failAll {
		return nil, errLookupDown
	}
	return s.invoices[id], nil
}

func (s *stubLookup) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	if s.failAll {
		return nil, errLookupDown
	}
	return s.branches[id], nil
}

func fullLookup() *stubLookup {
	scheduled := time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC)
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	return &stubLookup{
		clients: map[string]*models.Client{
			"client-1": {ID: "client-1", FirstName: "Ana", LastName: "Popescu", Phone: "+40711222333"},
		},
		vehicles: map[string]*models.Vehicle{
			"veh-1": {ID: "veh-1", Make: "Dacia", Model: "Duster", Year: 2021, LicensePlate: "B-123-XYZ"},
		},
		workOrders: map[string]*models.WorkOrder{
			"wo-1": {ID: "wo-1", Number: "WO-1042", Status: "IN_PROGRESS", ScheduledAt: &scheduled},
		},
		invoices: map[string]*models.Invoice{
			"inv-1": {ID: "inv-1", Number: "INV-77", Total: 450.5, Currency: "RON", DueDate: &due},
		},
		branches: map[string]*models.Branch{
			"branch-1": {ID: "branch-1", Name: "Downtown Garage"},
		},
	}
}

func newTestEnricher(t *testing.T, lookup *stubLookup) *Enricher {
	return NewEnricher(lookup, logger.NewTestLogger(t))
}

// ==========================
// Enrichment Tests
// ==========================

func TestEnrich_AllEntitiesPresent(t *testing.T) {
	enricher := newTestEnricher(t, fullLookup())

	event := &events.DomainEvent{
		Type:   events.TypeWorkOrderCreated,
		UserID: "user-1",
		Payload: map[string]interface{}{
			"workOrderId": "wo-1",
			"clientId":    "client-1",
			"vehicleId":   "veh-1",
			"invoiceId":   "inv-1",
			"branchId":    "branch-1",
		},
	}

	vars := enricher.Enrich(context.Background(), event)

	assert.Equal(t, "Ana Popescu", vars["clientName"])
	assert.Equal(t, "+40711222333", vars["clientPhone"])
	assert.Equal(t, "2021 Dacia Duster", vars["vehicleLabel"])
	assert.Equal(t, "B-123-XYZ", vars["licensePlate"])
	assert.Equal(t, "WO-1042", vars["workOrderNumber"])
	assert.Equal(t, "IN_PROGRESS", vars["workOrderStatus"])
	assert.Equal(t, "Sep 14, 2026 10:30", vars["scheduledAt"])
	assert.Equal(t, "INV-77", vars["invoiceNumber"])
	assert.Equal(t, "450.50 RON", vars["invoiceTotal"])
	assert.Equal(t, "Oct 1, 2026 00:00", vars["invoiceDueDate"])
	assert.Equal(t, "Downtown Garage", vars["branchName"])

	// Raw payload keys survive.
	assert.Equal(t, "wo-1", vars["workOrderId"])
}

func TestEnrich_MissingEntitiesAreSkipped(t *testing.T) {
	enricher := newTestEnricher(t, &stubLookup{})

	event := &events.DomainEvent{
		Type:   events.TypeWorkOrderCreated,
		UserID: "user-1",
		Payload: map[string]interface{}{
			"workOrderNumber": "WO-1",
			"clientId":        "gone-client",
			"vehicleId":       "gone-vehicle",
		},
	}

	vars := enricher.Enrich(context.Background(), event)

	assert.NotContains(t, vars, "clientName")
	assert.NotContains(t, vars, "vehicleLabel")
	assert.Equal(t, "WO-1", vars["workOrderNumber"], "payload-provided variables stay intact")
}

func TestEnrich_LookupErrorsAreTolerated(t *testing.T) {
	enricher := newTestEnricher(t, &stubLookup{failAll: true})

	event := &events.DomainEvent{
		Type:   events.TypeInvoiceCreated,
		UserID: "user-1",
		Payload: map[string]interface{}{
			"invoiceNumber": "INV-1",
			"invoiceId":     "inv-1",
			"clientId":      "client-1",
		},
	}

	vars := enricher.Enrich(context.Background(), event)
	require.NotNil(t, vars)
	assert.Equal(t, "INV-1", vars["invoiceNumber"])
	assert.NotContains(t, vars, "clientName")
}

func TestEnrich_BranchFromEventFieldBeatsPayload(t *testing.T) {
	lookup := fullLookup()
	lookup.branches["branch-2"] = &models.Branch{ID: "branch-2", Name: "Airport Garage"}
	enricher := newTestEnricher(t, lookup)

	event := &events.DomainEvent{
		Type:     events.TypeAppointmentReminder,
		UserID:   "user-1",
		BranchID: "branch-2",
		Payload: map[string]interface{}{
			"scheduledAt": "tomorrow",
			"branchId":    "branch-1",
		},
	}

	vars := enricher.Enrich(context.Background(), event)
	assert.Equal(t, "Airport Garage", vars["branchName"])
}

func TestEnrich_DoesNotMutateEventPayload(t *testing.T) {
	enricher := newTestEnricher(t, fullLookup())

	payload := map[string]interface{}{"clientId": "client-1"}
	event := &events.DomainEvent{Type: events.TypeWorkOrderCreated, UserID: "u", Payload: payload}

	enricher.Enrich(context.Background(), event)
	assert.Len(t, payload, 1, "enrichment must copy, not mutate")
}

// ==========================
// Formatting Helpers
// ==========================

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "12.00 USD", FormatMoney(12, ""))
	assert.Equal(t, "99.99 EUR", FormatMoney(99.99, "EUR"))
}

func TestVehicleLabel_WithoutYear(t *testing.T) {
	label := vehicleLabel(&models.Vehicle{Make: "Ford", Model: "Focus"})
	assert.Equal(t, "Ford Focus", label)
}
