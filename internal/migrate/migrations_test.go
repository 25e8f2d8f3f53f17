package migrate

import (
	"path/filepath"
	"testing"

	"surat/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "surat.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	v, err := Version(conn)
	if err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	latest, err := Latest()
	if err != nil {
		t.Fatal(err)
	}
	v, err = Version(conn)
	if err != nil || v != latest || v == 0 {
		t.Fatalf("version = %d (latest %d), %v", v, latest, err)
	}

	for _, table := range []string{"surat", "anggota", "profiles", "events"} {
		var n int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
}

func TestMembersCascade(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "surat.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`INSERT INTO surat(id, template_key, user_id, status, created_at, updated_at) VALUES ('s1','sptjm','u1','Pending','t','t')`); err != nil {
		t.Fatalf("insert request: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO anggota(id, surat_id, no, nama) VALUES ('m1','s1',2,'Budi')`); err != nil {
		t.Fatalf("insert member: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO anggota(id, surat_id, no, nama) VALUES ('m2','missing',2,'Budi')`); err == nil {
		t.Fatalf("expected foreign key violation")
	}
	if _, err := conn.Exec(`DELETE FROM surat WHERE id='s1'`); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM anggota`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("members not cascaded: %d", n)
	}
}
