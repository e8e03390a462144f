package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if (Draft{}).TableName() != "drafts" {
		t.Fatalf("Draft.TableName() = %q; want %q", (Draft{}).TableName(), "drafts")
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestDraft_IsEmpty(t *testing.T) {
	cases := []struct {
		name string
		d    Draft
		want bool
	}{
		{"all blank", Draft{}, true},
		{"whitespace only", Draft{Subject: "  \t", SourceBody: "\n"}, true},
		{"subject set", Draft{Subject: "RFQ"}, false},
		{"source body set", Draft{SourceBody: "hello"}, false},
		{"translated body set", Draft{TranslatedBody: "hola"}, false},
		{"recipient alone is not content", Draft{To: "supplier@example.com"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.d.IsEmpty(); got != tc.want {
				t.Fatalf("IsEmpty() = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestDraft_IsSynced(t *testing.T) {
	if (Draft{SyncStatus: SyncStatusPending}).IsSynced() {
		t.Fatalf("pending draft reported as synced")
	}
	if !(Draft{SyncStatus: SyncStatusSynced}).IsSynced() {
		t.Fatalf("synced draft not reported as synced")
	}
	if (Draft{SyncStatus: SyncStatusConflict}).IsSynced() {
		t.Fatalf("conflict draft reported as synced")
	}
}

func TestMigrations_Indexes_AndAutoIncrement(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Draft{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Draft{}, &Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Indexes from tags exist
	if !m.HasIndex(&Draft{}, "idx_drafts_status") {
		t.Fatalf("expected index idx_drafts_status on drafts")
	}
	if !m.HasIndex(&Draft{}, "idx_drafts_server") {
		t.Fatalf("expected index idx_drafts_server on drafts")
	}
	if !m.HasIndex(&Idempotency{}, "ux_client_scope_key") {
		t.Fatalf("expected unique index ux_client_scope_key on idempotency")
	}

	// LocalID is assigned by the database and increases monotonically.
	now := time.Now().UTC()
	d1 := &Draft{Subject: "first", UpdatedAt: now, SyncStatus: SyncStatusPending}
	d2 := &Draft{Subject: "second", UpdatedAt: now, SyncStatus: SyncStatusPending}
	if err := db.Create(d1).Error; err != nil {
		t.Fatalf("insert d1: %v", err)
	}
	if err := db.Create(d2).Error; err != nil {
		t.Fatalf("insert d2: %v", err)
	}
	if d1.LocalID == 0 || d2.LocalID == 0 {
		t.Fatalf("expected auto-assigned local ids, got %d and %d", d1.LocalID, d2.LocalID)
	}
	if d2.LocalID <= d1.LocalID {
		t.Fatalf("expected monotonically increasing ids: %d then %d", d1.LocalID, d2.LocalID)
	}

	// The status CHECK constraint rejects unknown values.
	bad := &Draft{Subject: "bad", UpdatedAt: now, SyncStatus: "bogus"}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for sync_status=bogus")
	}
}
