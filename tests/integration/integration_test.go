//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wacrm/internal/domain"
	"wacrm/internal/providers/whatsapp"
	"wacrm/internal/store/pg"
	workerproc "wacrm/internal/worker"
)

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	schema, err := os.ReadFile(filepath.Join("..", "..", "db", "schema.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	for _, table := range []string{"actions", "templates", "contacts", "profiles"} {
		if _, err := db.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	return db, db.Close
}

func seedGraphFixtures(t *testing.T, db *pgxpool.Pool, n int) []string {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	mustExec(t, db, `
		INSERT INTO profiles (id, name, access_token, phone_number_id, business_id, created_by, created_at)
		VALUES ('pr_1','acme','tok-1','pn-1','biz-1','user-1',$1)
	`, now)
	mustExec(t, db, `
		INSERT INTO contacts (id, name, phone, country, address, profile_id, created_by, created_at)
		VALUES ('ct_1','Huda','+96550001111','KW','','pr_1','user-1',$1)
	`, now)
	mustExec(t, db, `
		INSERT INTO templates (id, name, language, status, category, components, profile_id, created_by)
		VALUES ('tpl_1','order_update','en_US','APPROVED','UTILITY','[]','pr_1','user-1')
	`)

	var ids []string
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("act_%03d", i)
		_, err := db.Exec(ctx, `
			INSERT INTO actions (id, type, status, data, contact_id, profile_id, template_id, created_by, activity_log, created_at, updated_at)
			VALUES ($1,'SEND_TEMPLATE_MESSAGE','PENDING','{"components":[]}','ct_1','pr_1','tpl_1','user-1','[]',$2,$2)
		`, id, now)
		if err != nil {
			t.Fatalf("insert action %s: %v", id, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func mustExec(t *testing.T, db *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	if _, err := db.Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("exec %q: %v", sql, err)
	}
}

func newRunner(db *pgxpool.Pool, graphURL string, batchSize int) *workerproc.Runner {
	st := pg.New(db)
	client := &whatsapp.Client{BaseURL: graphURL, HTTP: &http.Client{Timeout: 5 * time.Second}}
	handler := &workerproc.SendTemplateHandler{Sender: client}
	return &workerproc.Runner{
		Store: st,
		Processor: &workerproc.Processor{
			Store: st,
			Handlers: map[domain.ActionType]workerproc.Handler{
				domain.ActionSendTemplateMessage: handler.Handle,
			},
		},
		BatchSize: batchSize,
	}
}

func TestRunDrains45ActionsInThreeBatches(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Every third send is rejected by the provider.
	var sends int
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		if sends%3 == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid phone number"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer graph.Close()

	ids := seedGraphFixtures(t, db, 45)
	runner := newRunner(db, graph.URL, 20)

	var progress []int
	if err := runner.Run(ctx, func(batch, total int) {
		if total != 3 {
			t.Errorf("total batches = %d, want 3", total)
		}
		progress = append(progress, batch)
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(progress) != 3 {
		t.Fatalf("progress signals = %v", progress)
	}
	if sends != 45 {
		t.Fatalf("provider saw %d sends, want 45 (no duplicates, no omissions)", sends)
	}

	st := pg.New(db)
	for _, id := range ids {
		var status string
		var logJSON []byte
		err := db.QueryRow(ctx, `SELECT status, activity_log FROM actions WHERE id=$1`, id).Scan(&status, &logJSON)
		if err != nil {
			t.Fatalf("read %s: %v", id, err)
		}
		if status != "SUCCESS" && status != "FAILED" {
			t.Fatalf("action %s left in %s", id, status)
		}
	}

	// SUCCESS rows left the unfinished set for good.
	remaining, err := st.CountUnfinishedActions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 15 {
		t.Fatalf("unfinished after run = %d, want the 15 FAILED", remaining)
	}
}

func TestFailedActionsRetriedOnNextRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	fail := true
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Template paused"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer graph.Close()

	seedGraphFixtures(t, db, 3)
	runner := newRunner(db, graph.URL, 20)

	if err := runner.Run(ctx, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	fail = false
	if err := runner.Run(ctx, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}

	rows, err := db.Query(ctx, `SELECT status, jsonb_array_length(activity_log) FROM actions`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var entries int
		if err := rows.Scan(&status, &entries); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if status != "SUCCESS" {
			t.Fatalf("status = %s after retry run", status)
		}
		if entries != 2 {
			t.Fatalf("activity log has %d entries, want one per attempt (2)", entries)
		}
	}
}
