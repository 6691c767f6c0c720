package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/sitechat-backend/internal/data/repos/testutil"
	types "github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/dbctx"
)

func newJob(ws uuid.UUID, jobType, status string, created time.Time) *types.JobRun {
	entityID := uuid.New()
	return &types.JobRun{
		ID:          uuid.New(),
		WorkspaceID: ws,
		JobType:     jobType,
		EntityType:  "bot",
		EntityID:    &entityID,
		Status:      status,
		Stage:       status,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	ws := uuid.New()

	queued := newJob(ws, "test_job", "queued", now.Add(-3*time.Hour))
	failed := newJob(ws, "test_job", "failed", now.Add(-2*time.Hour))
	lastErr := now.Add(-2 * time.Hour)
	failed.LastErrorAt = &lastErr
	stale := newJob(ws, "test_job", "running", now.Add(-1*time.Hour))
	hb := now.Add(-10 * time.Hour)
	stale.HeartbeatAt = &hb

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, stale})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("Create: expected 3, got %d", len(created))
	}

	// Claims walk the runnable set oldest first.
	for i, want := range []uuid.UUID{queued.ID, failed.ID, stale.ID} {
		got, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if got == nil || got.ID != want {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, want, got)
		}
		if got.Status != "running" {
			t.Fatalf("ClaimNextRunnable #%d: status %q", i+1, got.Status)
		}
	}
	if got, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour); err != nil || got != nil {
		t.Fatalf("ClaimNextRunnable #4: expected nil, got %v err=%v", got, err)
	}

	// A canceled job must not be resurrected by a late progress write.
	if err := repo.UpdateFields(dbc, queued.ID, map[string]interface{}{"status": "canceled"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{"canceled"}, map[string]interface{}{"progress": 50})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("UpdateFieldsUnlessStatus: expected no-op on canceled job")
	}

	if err := repo.Heartbeat(dbc, failed.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	runnable := newJob(ws, "bot_train", "queued", now)
	if _, err := repo.Create(dbc, []*types.JobRun{runnable}); err != nil {
		t.Fatalf("seed runnable: %v", err)
	}
	exists, err := repo.ExistsRunnable(dbc, "bot_train", "bot", runnable.EntityID)
	if err != nil || !exists {
		t.Fatalf("ExistsRunnable: exists=%v err=%v", exists, err)
	}
	other := uuid.New()
	exists, err = repo.ExistsRunnable(dbc, "bot_train", "bot", &other)
	if err != nil || exists {
		t.Fatalf("ExistsRunnable (other): exists=%v err=%v", exists, err)
	}

	latest, err := repo.GetLatestByEntity(dbc, "bot", *runnable.EntityID, "bot_train")
	if err != nil || latest == nil || latest.ID != runnable.ID {
		t.Fatalf("GetLatestByEntity: got %v err=%v", latest, err)
	}
}

func TestUpdateFieldsUnlessStatusQuery(t *testing.T) {
	db, mock := testutil.MockDB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	id := uuid.New()

	mock.ExpectExec(`UPDATE "job_run" SET .* WHERE id = \$\d+ AND status NOT IN \(\$\d+,\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.Background()}, id,
		[]string{"canceled", "succeeded"}, map[string]interface{}{"progress": 10})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if !ok {
		t.Fatalf("expected a row to be updated")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNilIDsAreNoops(t *testing.T) {
	db, mock := testutil.MockDB(t)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	if j, err := repo.GetByID(dbc, uuid.Nil); j != nil || err != nil {
		t.Fatalf("GetByID(nil): %v %v", j, err)
	}
	if err := repo.Heartbeat(dbc, uuid.Nil); err != nil {
		t.Fatalf("Heartbeat(nil): %v", err)
	}
	if ok, err := repo.ExistsRunnable(dbc, "", "", nil); ok || err != nil {
		t.Fatalf("ExistsRunnable(empty): %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}
