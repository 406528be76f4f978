package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs(now, "sso_token_issued", "u1", "u1", "t1", "chat", "granted", "", "req-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Append(context.Background(), Event{
		Timestamp: now, Action: ActionSSOIssued, ActorID: "u1", SubjectID: "u1",
		TenantID: "t1", AppSlug: "chat", Decision: "granted", RequestID: "req-1",
	}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_events")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"occurred_at", "action", "actor_id", "subject_id", "tenant_id", "app_slug", "decision", "reason", "request_id"}).
			AddRow(now, "sso_token_issued", "u1", "u1", "t1", "chat", "granted", "", "req-1"))
	events, err := store.ListBySubject(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionSSOIssued, events[0].Action)

	assert.NoError(t, mock.ExpectationsWereMet())
}
