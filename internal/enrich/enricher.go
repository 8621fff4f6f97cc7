// internal/enrich/enricher.go
package enrich

import (
	"context"
	"fmt"
	"time"

	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/events"
	"autoshop-notifications/internal/models"
)

// EntityLookup is the read-only fetch-by-id surface of the CRUD layer.
// Implementations must return (nil, nil) for missing entities; enrichment
// tolerates gaps and the corresponding variables are simply absent.
type EntityLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetClient(ctx context.Context, id string) (*models.Client, error)
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error)
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	GetBranch(ctx context.Context, id string) (*models.Branch, error)
}

// Enricher expands a raw event payload into the flat variable context that
// template rendering consumes.
type Enricher struct {
	lookup EntityLookup
	logger logger.Logger
}

func NewEnricher(lookup EntityLookup, log logger.Logger) *Enricher {
	return &Enricher{
		lookup: lookup,
		logger: log.WithFields(map[string]interface{}{"component": "enricher"}),
	}
}

// Enrich copies the payload and adds human-readable fields pulled from the
// referenced entities. Lookup failures are logged and skipped; rendering must
// never fail because a referenced entity disappeared.
func (e *Enricher) Enrich(ctx context.Context, event *events.DomainEvent) map[string]interface{} {
	vars := make(map[string]interface{}, len(event.Payload)+8)
	for k, v := range event.Payload {
		vars[k] = v
	}

	if id := strField(event.Payload, "clientId"); id != "" {
		if client := e.fetchClient(ctx, id); client != nil {
			vars["clientName"] = client.FullName()
			if client.Phone != "" {
				vars["clientPhone"] = client.Phone
			}
		}
	}

	if id := strField(event.Payload, "vehicleId"); id != "" {
		if vehicle := e.fetchVehicle(ctx, id); vehicle != nil {
			vars["vehicleLabel"] = vehicleLabel(vehicle)
			if vehicle.LicensePlate != "" {
				vars["licensePlate"] = vehicle.LicensePlate
			}
		}
	}

	if id := strField(event.Payload, "workOrderId"); id != "" {
		if wo := e.fetchWorkOrder(ctx, id); wo != nil {
			vars["workOrderNumber"] = wo.Number
			vars["workOrderStatus"] = wo.Status
			if wo.ScheduledAt != nil {
				vars["scheduledAt"] = FormatDate(*wo.ScheduledAt)
			}
		}
	}

	if id := strField(event.Payload, "invoiceId"); id != "" {
		if inv := e.fetchInvoice(ctx, id); inv != nil {
			vars["invoiceNumber"] = inv.Number
			vars["invoiceTotal"] = FormatMoney(inv.Total, inv.Currency)
			if inv.DueDate != nil {
				vars["invoiceDueDate"] = FormatDate(*inv.DueDate)
			}
		}
	}

	branchID := event.BranchID
	if branchID == "" {
		branchID = strField(event.Payload, "branchId")
	}
	if branchID != "" {
		if branch := e.fetchBranch(ctx, branchID); branch != nil {
			vars["branchName"] = branch.Name
		}
	}

	return vars
}

func (e *Enricher) fetchClient(ctx context.Context, id string) *models.Client {
	c, err := e.lookup.GetClient(ctx, id)
	if err != nil {
		e.warnLookup("client", id, err)
		return nil
	}
	return c
}

func (e *Enricher) fetchVehicle(ctx context.Context, id string) *models.Vehicle {
	v, err := e.lookup.GetVehicle(ctx, id)
	if err != nil {
		e.warnLookup("vehicle", id, err)
		return nil
	}
	return v
}

func (e *Enricher) fetchWorkOrder(ctx context.Context, id string) *models.WorkOrder {
	wo, err := e.lookup.GetWorkOrder(ctx, id)
	if err != nil {
		e.warnLookup("workOrder", id, err)
		return nil
	}
	return wo
}

func (e *Enricher) fetchInvoice(ctx context.Context, id string) *models.Invoice {
	inv, err := e.lookup.GetInvoice(ctx, id)
	if err != nil {
		e.warnLookup("invoice", id, err)
		return nil
	}
	return inv
}

func (e *Enricher) fetchBranch(ctx context.Context, id string) *models.Branch {
	b, err := e.lookup.GetBranch(ctx, id)
	if err != nil {
		e.warnLookup("branch", id, err)
		return nil
	}
	return b
}

func (e *Enricher) warnLookup(entity, id string, err error) {
	e.logger.Warn("entity lookup failed, variables skipped", map[string]interface{}{
		"entity": entity,
		"id":     id,
		"error":  err.Error(),
	})
}

func strField(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func vehicleLabel(v *models.Vehicle) string {
	if v.Year > 0 {
		return fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
	}
	return fmt.Sprintf("%s %s", v.Make, v.Model)
}

// FormatMoney renders an amount the way invoices display it.
func FormatMoney(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

// FormatDate renders timestamps in the human-readable form templates expect.
func FormatDate(t time.Time) string {
	return t.Format("Jan 2, 2006 15:04")
}
