package repositories

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// openFileDB opens a migrated SQLite database at path with its own connection pool.
func openFileDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func testOperation(id, source string) *models.Operation {
	return &models.Operation{
		ID:                id,
		SourceGroupID:     source,
		Status:            models.StatusInit,
		StartTime:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		MembersToInvite:   []string{"1@s.whatsapp.net", "2@s.whatsapp.net"},
		InvitedMembers:    models.NewParticipantSet(),
		JoinedMembers:     models.NewParticipantSet(),
		ExcludedIDs:       models.NewParticipantSet(),
		MigrationProgress: 0,
	}
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()

	t.Run("Get missing key", func(t *testing.T) {
		kv := NewSQLiteKV(setupTestDB(t))

		_, ok, err := kv.Get(ctx, "absent")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected missing key")
		}
	})

	t.Run("Set then overwrite", func(t *testing.T) {
		kv := NewSQLiteKV(setupTestDB(t))

		if err := kv.Set(ctx, "k", []byte("one")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if err := kv.Set(ctx, "k", []byte("two")); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}

		v, ok, err := kv.Get(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("expected value, got ok=%v err=%v", ok, err)
		}
		if string(v) != "two" {
			t.Errorf("expected two, got %s", v)
		}

		keys, err := kv.Keys(ctx)
		if err != nil {
			t.Fatalf("failed to list keys: %v", err)
		}
		if len(keys) != 1 || keys[0] != "k" {
			t.Errorf("expected [k], got %v", keys)
		}
	})

	t.Run("Update", func(t *testing.T) {
		kv := NewSQLiteKV(setupTestDB(t))

		err := kv.Update(ctx, "k", func(value []byte, ok bool) ([]byte, error) {
			if ok || value != nil {
				t.Errorf("expected missing key, got %q", value)
			}
			return []byte("one"), nil
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}

		err = kv.Update(ctx, "k", func(value []byte, ok bool) ([]byte, error) {
			if !ok || string(value) != "one" {
				t.Errorf("expected one, got %q", value)
			}
			return append(value, "+two"...), nil
		})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}

		if v, _, _ := kv.Get(ctx, "k"); string(v) != "one+two" {
			t.Errorf("expected one+two, got %s", v)
		}
	})

	t.Run("Update rolls back when fn fails", func(t *testing.T) {
		kv := NewSQLiteKV(setupTestDB(t))
		if err := kv.Set(ctx, "k", []byte("one")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}

		boom := errors.New("boom")
		err := kv.Update(ctx, "k", func([]byte, bool) ([]byte, error) { return nil, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if v, _, _ := kv.Get(ctx, "k"); string(v) != "one" {
			t.Errorf("expected one, got %s", v)
		}

		// the connection is usable again after the rollback
		if err := kv.Set(ctx, "k", []byte("two")); err != nil {
			t.Fatalf("failed to set after rollback: %v", err)
		}
	})
}

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	value := []byte("abc")
	if err := kv.Set(ctx, "k", value); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	value[0] = 'z'

	got, ok, _ := kv.Get(ctx, "k")
	if !ok || string(got) != "abc" {
		t.Errorf("stored value should be copied, got %s", got)
	}
	if kv.Writes() != 1 {
		t.Errorf("expected 1 write, got %d", kv.Writes())
	}

	err := kv.Update(ctx, "k", func([]byte, bool) ([]byte, error) { return nil, ErrSkipSave })
	if !errors.Is(err, ErrSkipSave) {
		t.Errorf("expected ErrSkipSave, got %v", err)
	}
	if kv.Writes() != 1 {
		t.Errorf("failed update should not write, got %d writes", kv.Writes())
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	backends := map[string]func(t *testing.T) KV{
		"sqlite": func(t *testing.T) KV { return NewSQLiteKV(setupTestDB(t)) },
		"memory": func(t *testing.T) KV { return NewMemoryKV() },
	}

	for name, newKV := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("empty document", func(t *testing.T) {
				store := NewStore(newKV(t))

				err := store.View(ctx, func(st *State) error {
					if len(st.Operations) != 0 || st.InvitationBatches == nil {
						t.Errorf("expected empty initialized state, got %+v", st)
					}
					return nil
				})
				if err != nil {
					t.Fatalf("view failed: %v", err)
				}
			})

			t.Run("Update persists", func(t *testing.T) {
				store := NewStore(newKV(t))

				err := store.Update(ctx, func(st *State) error {
					st.AddOperation(testOperation("op-1", "src-a"))
					return nil
				})
				if err != nil {
					t.Fatalf("update failed: %v", err)
				}

				err = store.View(ctx, func(st *State) error {
					op, err := st.Operation("op-1")
					if err != nil {
						return err
					}
					if op.SourceGroupID != "src-a" {
						t.Errorf("expected source src-a, got %s", op.SourceGroupID)
					}
					if active, ok := st.ActiveFor("src-a"); !ok || active.ID != "op-1" {
						t.Error("expected active index entry for src-a")
					}
					return nil
				})
				if err != nil {
					t.Fatalf("view failed: %v", err)
				}
			})

			t.Run("failed mutation writes nothing", func(t *testing.T) {
				store := NewStore(newKV(t))
				boom := errors.New("boom")

				err := store.Update(ctx, func(st *State) error {
					st.AddOperation(testOperation("op-1", "src-a"))
					return boom
				})
				if !errors.Is(err, boom) {
					t.Fatalf("expected boom, got %v", err)
				}

				_ = store.View(ctx, func(st *State) error {
					if len(st.Operations) != 0 {
						t.Error("failed update should not persist")
					}
					return nil
				})
			})

			t.Run("invariant violation is refused", func(t *testing.T) {
				store := NewStore(newKV(t))

				err := store.Update(ctx, func(st *State) error {
					op := testOperation("op-1", "src-a")
					op.InvitedMembers.Add("stranger@s.whatsapp.net")
					st.AddOperation(op)
					return nil
				})
				if !errors.Is(err, models.ErrInvariant) {
					t.Fatalf("expected ErrInvariant, got %v", err)
				}
			})
		})
	}

	t.Run("writers sharing a database file are serialized", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.db")
		server := NewStore(NewSQLiteKV(openFileDB(t, path)))
		cli := NewStore(NewSQLiteKV(openFileDB(t, path)))

		done := make(chan error, 1)
		finished := false
		var cliErr error

		err := server.Update(ctx, func(st *State) error {
			st.AddOperation(testOperation("op-1", "src-a"))
			go func() {
				done <- cli.Update(ctx, func(st *State) error {
					st.AddOperation(testOperation("op-2", "src-b"))
					return nil
				})
			}()

			select {
			case cliErr = <-done:
				finished = true
				t.Error("second writer ran while the first held the document")
			case <-time.After(100 * time.Millisecond):
			}
			return nil
		})
		if err != nil {
			t.Fatalf("first update failed: %v", err)
		}
		if !finished {
			cliErr = <-done
		}
		if cliErr != nil {
			t.Fatalf("second update failed: %v", cliErr)
		}

		err = server.View(ctx, func(st *State) error {
			for _, id := range []string{"op-1", "op-2"} {
				if _, err := st.Operation(id); err != nil {
					t.Errorf("lost update: %v", err)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view failed: %v", err)
		}
	})

	t.Run("ErrSkipSave skips the write", func(t *testing.T) {
		kv := NewMemoryKV()
		store := NewStore(kv)

		err := store.Update(ctx, func(st *State) error { return ErrSkipSave })
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if kv.Writes() != 0 {
			t.Errorf("expected no writes, got %d", kv.Writes())
		}
	})
}

func TestState(t *testing.T) {
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)

	t.Run("Archive moves record and clears index and pending batches", func(t *testing.T) {
		st := NewState()
		st.AddOperation(testOperation("op-1", "src-a"))
		st.InvitationBatches["b-pending"] = &models.Batch{ID: "b-pending", OperationID: "op-1", Members: []string{"1@s.whatsapp.net"}, Status: models.BatchPending}
		st.InvitationBatches["b-sent"] = &models.Batch{ID: "b-sent", OperationID: "op-1", Members: []string{"2@s.whatsapp.net"}, Status: models.BatchSent}

		op, err := st.Archive("op-1", now)
		if err != nil {
			t.Fatalf("archive failed: %v", err)
		}
		if op.CompletedAt == nil || !op.CompletedAt.Equal(now) {
			t.Error("expected CompletedAt to be set")
		}
		if _, err := st.Operation("op-1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for archived op, got %v", err)
		}
		if _, ok := st.Archived("op-1"); !ok {
			t.Error("expected archived record")
		}
		if _, ok := st.ActiveBySource["src-a"]; ok {
			t.Error("expected index entry to be cleared")
		}
		if _, ok := st.InvitationBatches["b-pending"]; ok {
			t.Error("expected pending batch to be dropped")
		}
		if _, ok := st.InvitationBatches["b-sent"]; !ok {
			t.Error("sent batch should remain as history")
		}

		if _, err := st.Archive("op-1", now); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("second archive should fail with ErrNotFound, got %v", err)
		}
	})

	t.Run("ActiveFor ignores inactive statuses", func(t *testing.T) {
		st := NewState()
		op := testOperation("op-1", "src-a")
		op.Status = models.StatusMonitoring
		st.AddOperation(op)

		if _, ok := st.ActiveFor("src-a"); ok {
			t.Error("monitoring operation should not block a new start")
		}
	})

	t.Run("AddOperation keeps the index of an active operation", func(t *testing.T) {
		st := NewState()
		creating := testOperation("op-1", "src-a")
		creating.Status = models.StatusCreatingGroup
		if err := st.AddOperation(creating); err != nil {
			t.Fatalf("add failed: %v", err)
		}

		err := st.AddOperation(testOperation("op-2", "src-a"))
		var dup *shared.DuplicateOperationError
		if !errors.As(err, &dup) || dup.ExistingID != "op-1" {
			t.Fatalf("expected duplicate naming op-1, got %v", err)
		}
		if _, ok := st.Operations["op-2"]; ok {
			t.Error("refused operation should not be stored")
		}
		if st.ActiveBySource["src-a"] != "op-1" {
			t.Errorf("index moved to %s", st.ActiveBySource["src-a"])
		}
	})

	t.Run("Claim", func(t *testing.T) {
		st := NewState()
		older := testOperation("op-old", "src-a")
		older.Status = models.StatusMonitoring
		st.AddOperation(older)
		newer := testOperation("op-new", "src-a")
		if err := st.AddOperation(newer); err != nil {
			t.Fatalf("monitoring operation should not block a new start: %v", err)
		}

		if err := st.Claim("src-a", "op-old"); !errors.Is(err, shared.ErrDuplicateOperation) {
			t.Errorf("expected duplicate operation, got %v", err)
		}
		if err := st.Claim("src-a", "op-new"); err != nil {
			t.Errorf("re-claiming own index failed: %v", err)
		}

		newer.Status = models.StatusFailed
		if err := st.Claim("src-a", "op-old"); err != nil {
			t.Errorf("claim after the newer operation ended failed: %v", err)
		}
		if st.ActiveBySource["src-a"] != "op-old" {
			t.Errorf("expected index at op-old, got %s", st.ActiveBySource["src-a"])
		}
	})

	t.Run("Validate requires active operations to be indexed", func(t *testing.T) {
		st := NewState()
		st.AddOperation(testOperation("op-1", "src-a"))
		if err := st.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second := testOperation("op-2", "src-a")
		second.Status = models.StatusInviting
		st.Operations["op-2"] = second
		if err := st.Validate(); !errors.Is(err, models.ErrInvariant) {
			t.Errorf("expected invariant error, got %v", err)
		}
	})

	t.Run("ByTarget only matches reconcilable operations", func(t *testing.T) {
		st := NewState()
		preparing := testOperation("op-1", "src-a")
		preparing.TargetGroupID = "tgt"
		preparing.Status = models.StatusPreparing
		st.AddOperation(preparing)

		if _, ok := st.ByTarget("tgt"); ok {
			t.Error("preparing operation should not accept joins")
		}

		preparing.Status = models.StatusInviting
		if op, ok := st.ByTarget("tgt"); !ok || op.ID != "op-1" {
			t.Error("expected inviting operation to match")
		}
	})

	t.Run("TakeExclusions clears entry", func(t *testing.T) {
		st := NewState()
		st.PendingExclusions["src-a"] = []string{"x"}

		if got := st.TakeExclusions("src-a"); len(got) != 1 {
			t.Errorf("expected one id, got %v", got)
		}
		if got := st.TakeExclusions("src-a"); len(got) != 0 {
			t.Errorf("expected entry cleared, got %v", got)
		}
	})

	t.Run("List orders newest first", func(t *testing.T) {
		st := NewState()
		older := testOperation("op-old", "src-a")
		newer := testOperation("op-new", "src-b")
		newer.StartTime = older.StartTime.Add(time.Hour)
		st.AddOperation(older)
		st.AddOperation(newer)
		archived := testOperation("op-archived", "src-c")
		archived.StartTime = older.StartTime.Add(-time.Hour)
		st.CompletedClones = append(st.CompletedClones, archived)

		live := st.List(false)
		if len(live) != 2 || live[0].ID != "op-new" {
			t.Errorf("unexpected live order %v", live)
		}
		if all := st.List(true); len(all) != 3 || all[2].ID != "op-archived" {
			t.Errorf("unexpected full list %v", all)
		}
	})

	t.Run("Batches oldest first", func(t *testing.T) {
		st := NewState()
		st.InvitationBatches["b2"] = &models.Batch{ID: "b2", OperationID: "op-1", CreatedAt: now.Add(time.Minute)}
		st.InvitationBatches["b1"] = &models.Batch{ID: "b1", OperationID: "op-1", CreatedAt: now}
		st.InvitationBatches["other"] = &models.Batch{ID: "other", OperationID: "op-2", CreatedAt: now}

		got := st.Batches("op-1")
		if len(got) != 2 || got[0].ID != "b1" || got[1].ID != "b2" {
			t.Errorf("unexpected batch order")
		}
	})
}
