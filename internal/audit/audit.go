// internal/audit/audit.go
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/store"
)

// Writer records one append-only log entry per delivery attempt. Postgres is
// the source of truth; entries are additionally indexed into Elasticsearch
// for ad-hoc querying when an ES client is configured. An audit write never
// fails the delivery it describes, errors are logged and swallowed.
type Writer struct {
	logs     *store.LogStore
	esClient *elasticsearch.Client
	esIndex  string
	logger   logger.Logger
}

func NewWriter(logs *store.LogStore, esClient *elasticsearch.Client, esIndex string, log logger.Logger) *Writer {
	return &Writer{
		logs:     logs,
		esClient: esClient,
		esIndex:  esIndex,
		logger:   log,
	}
}

// RecordAttempt appends one entry for a send attempt, successful or not.
func (w *Writer) RecordAttempt(ctx context.Context, entry *models.NotificationLog) {
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now()
	}

	if err := w.logs.Append(ctx, entry); err != nil {
		w.logger.Error("Failed to append notification log", map[string]interface{}{
			"notificationId": entry.NotificationID,
			"channel":        entry.Channel,
			"error":          err.Error(),
		})
		return
	}

	w.indexEntry(ctx, entry)
}

// indexEntry mirrors the entry into Elasticsearch, best effort.
func (w *Writer) indexEntry(ctx context.Context, entry *models.NotificationLog) {
	if w.esClient == nil {
		return
	}

	doc, err := json.Marshal(entry)
	if err != nil {
		return
	}

	res, err := w.esClient.Index(
		w.esIndex,
		strings.NewReader(string(doc)),
		w.esClient.Index.WithDocumentID(entry.ID),
		w.esClient.Index.WithContext(ctx),
	)
	if err != nil {
		w.logger.Warn("Failed to index notification log", map[string]interface{}{
			"notificationId": entry.NotificationID,
			"error":          err.Error(),
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		w.logger.Warn("Elasticsearch rejected notification log", map[string]interface{}{
			"notificationId": entry.NotificationID,
			"status":         res.StatusCode,
		})
	}
}

// History returns the delivery attempts recorded for a notification, oldest
// first.
func (w *Writer) History(ctx context.Context, notificationID string) ([]*models.NotificationLog, error) {
	return w.logs.ListByNotification(ctx, notificationID)
}
