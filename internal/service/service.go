// Package service implements the marketplace use cases.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/vikar-api/internal/models"
	appErrors "github.com/noah-isme/vikar-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// lookupError maps a repository lookup failure to a typed error.
func lookupError(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	return appErrors.Internal(err, internalMsg)
}

// emitAudit records an audit entry without failing the caller.
func emitAudit(ctx context.Context, repo auditWriter, logger *zap.Logger, actorID, action, resource, resourceID string, payload interface{}) {
	if repo == nil {
		return
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			logger.Warn("audit payload encode failed", zap.String("action", action), zap.Error(err))
		}
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		NewValues: body,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if err := repo.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}
