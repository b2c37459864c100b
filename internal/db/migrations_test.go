package db

import (
	"errors"
	"testing"
)

func TestCheckSchema(t *testing.T) {
	db := NewTestDB(t)

	version, err := CheckSchema(db)
	if err != nil {
		t.Fatalf("checking migrated schema: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("migrating twice: %v", err)
	}
}

func TestCheckSchemaRefusesDirtyDatabase(t *testing.T) {
	db := NewTestDB(t)

	if _, err := db.Exec("UPDATE schema_migrations SET dirty = 1"); err != nil {
		t.Fatalf("marking schema dirty: %v", err)
	}

	version, err := CheckSchema(db)
	if !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("CheckSchema error = %v, want ErrDirtySchema", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}
