package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

// These tests need a real Postgres with internal/db/schema.sql applied;
// they skip when TEST_DATABASE_URL is unset. Each test seeds its own
// rows under unique names and removes them again.

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func suffix() string {
	return uuid.NewString()[:8]
}

func seedRole(t *testing.T, pool *pgxpool.Pool, name string) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO roles (name) VALUES ($1) RETURNING id`, name).Scan(&id); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	})
	return id
}

func cleanupGroup(t *testing.T, pool *pgxpool.Pool, id int64) {
	t.Helper()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM groups WHERE id = $1`, id)
	})
}

func TestGroupReparentCycleGuard(t *testing.T) {
	pool := testPool(t)
	store := NewGroupStore(pool)
	ctx := context.Background()
	tag := suffix()

	a, err := store.Create(ctx, "branch-a-"+tag, nil)
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := store.Create(ctx, "branch-b-"+tag, &a.ID)
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	c, err := store.Create(ctx, "branch-c-"+tag, &b.ID)
	if err != nil {
		t.Fatalf("create c: %v", err)
	}
	// Leaves first: parent_id references rows above.
	cleanupGroup(t, pool, a.ID)
	cleanupGroup(t, pool, b.ID)
	cleanupGroup(t, pool, c.ID)

	if err := store.Update(ctx, a.ID, a.Name, &a.ID); !errors.Is(err, repository.ErrGroupCycle) {
		t.Fatalf("self-parent: got %v, want ErrGroupCycle", err)
	}
	if err := store.Update(ctx, a.ID, a.Name, &c.ID); !errors.Is(err, repository.ErrGroupCycle) {
		t.Fatalf("reparent under own grandchild: got %v, want ErrGroupCycle", err)
	}
	if err := store.Update(ctx, a.ID, a.Name, &b.ID); !errors.Is(err, repository.ErrGroupCycle) {
		t.Fatalf("reparent under own child: got %v, want ErrGroupCycle", err)
	}

	// Sideways move stays legal: c from b to directly under a.
	if err := store.Update(ctx, c.ID, c.Name, &a.ID); err != nil {
		t.Fatalf("legal reparent: %v", err)
	}
}

func TestGroupClosure(t *testing.T) {
	pool := testPool(t)
	store := NewGroupStore(pool)
	ctx := context.Background()
	tag := suffix()

	root, err := store.Create(ctx, "region-"+tag, nil)
	if err != nil {
		t.Fatalf("create root: %v", err)
	}
	mid, err := store.Create(ctx, "city-"+tag, &root.ID)
	if err != nil {
		t.Fatalf("create mid: %v", err)
	}
	leaf, err := store.Create(ctx, "office-"+tag, &mid.ID)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	other, err := store.Create(ctx, "other-"+tag, nil)
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	cleanupGroup(t, pool, root.ID)
	cleanupGroup(t, pool, mid.ID)
	cleanupGroup(t, pool, leaf.ID)
	cleanupGroup(t, pool, other.ID)

	all, err := store.Descendants(ctx, root.ID)
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("descendants of root = %d nodes, want 3: %+v", len(all), all)
	}

	ids, err := store.DescendantIDs(ctx, []int64{root.ID})
	if err != nil {
		t.Fatalf("closure: %v", err)
	}
	want := map[int64]bool{root.ID: true, mid.ID: true, leaf.ID: true}
	if len(ids) != 3 {
		t.Fatalf("closure = %v, want the three-node chain", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Fatalf("closure contains stranger %d (other root is %d)", id, other.ID)
		}
	}

	// Upward never leaks: the leaf's closure is just itself.
	ids, err = store.DescendantIDs(ctx, []int64{leaf.ID})
	if err != nil {
		t.Fatalf("leaf closure: %v", err)
	}
	if len(ids) != 1 || ids[0] != leaf.ID {
		t.Fatalf("leaf closure = %v, want only the leaf", ids)
	}
}

func TestDuplicatePermissionMappings(t *testing.T) {
	pool := testPool(t)
	store := NewPermissionStore(pool)
	ctx := context.Background()
	tag := suffix()

	roleID := seedRole(t, pool, "auditor-"+tag)

	perm, err := store.Create(ctx, "report:sign-"+tag, "sign off reports")
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, perm.ID)
	})

	if _, err := store.Create(ctx, "report:sign-"+tag, ""); !errors.Is(err, repository.ErrDuplicatePermission) {
		t.Fatalf("duplicate name: got %v, want ErrDuplicatePermission", err)
	}

	if err := store.Assign(ctx, roleID, perm.ID); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := store.Assign(ctx, roleID, perm.ID); !errors.Is(err, repository.ErrDuplicateAssignment) {
		t.Fatalf("second assign: got %v, want ErrDuplicateAssignment", err)
	}
	if err := store.Assign(ctx, roleID, perm.ID+1_000_000); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("assign unknown permission: got %v, want ErrNotFound", err)
	}

	names, err := store.NamesForRole(ctx, roleID)
	if err != nil {
		t.Fatalf("names for role: %v", err)
	}
	if len(names) != 1 || names[0] != perm.Name {
		t.Fatalf("NamesForRole = %v, want [%s]", names, perm.Name)
	}
}

func TestHardDeleteUploaderOrphansDocuments(t *testing.T) {
	pool := testPool(t)
	users := NewUserStore(pool)
	groups := NewGroupStore(pool)
	docs := NewDocumentStore(pool)
	ctx := context.Background()
	tag := suffix()

	roleID := seedRole(t, pool, "clerk-"+tag)
	group, err := groups.Create(ctx, "vault-"+tag, nil)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	cleanupGroup(t, pool, group.ID)

	user, err := users.Create(ctx, &models.User{
		Name:         "Temp Clerk",
		TelegramID:   "clerk-" + tag,
		PasswordHash: "x",
		RoleID:       roleID,
		IsActive:     true,
	}, []int64{group.ID})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	doc, err := docs.Create(ctx, &models.Document{
		Title:          "ledger " + tag,
		GroupID:        group.ID,
		UploaderID:     user.ID,
		FilePath:       "/tmp/" + tag,
		FileName:       "ledger.pdf",
		UploaderName:   user.Name,
		UploaderHandle: user.TelegramID,
		GroupName:      group.Name,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, doc.ID)
	})

	// The upload must not block the hard delete.
	if err := users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete uploader: %v", err)
	}

	got, err := docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reload document: %v", err)
	}
	if got.UploaderID != 0 {
		t.Fatalf("UploaderID = %d, want 0 after uploader deletion", got.UploaderID)
	}
	if got.UploaderName != "Temp Clerk" || got.UploaderHandle != "clerk-"+tag {
		t.Fatalf("snapshot attribution lost: %+v", got)
	}
}
