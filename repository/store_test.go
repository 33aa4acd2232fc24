package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindhaven/mindhaven/config"
	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/models"
	"github.com/mindhaven/mindhaven/repository"
)

var errRollback = errors.New("rollback")

// stores yields the in-memory store and, when TEST_DATABASE_URI is set, a gorm store
// against that database (TEST_DB_DRIVER picks mysql or postgres, default postgres).
func stores(t *testing.T) map[string]gamification.Store {
	t.Helper()
	out := map[string]gamification.Store{"memory": repository.NewMemoryStore()}
	uri := os.Getenv("TEST_DATABASE_URI")
	if uri == "" {
		return out
	}
	driver := os.Getenv("TEST_DB_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	db, err := config.OpenDatabase(config.AppConfig{DBDriver: driver, DatabaseURI: uri, LogLevel: "error"}, repository.Models()...)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	out["gorm"] = repository.NewGormStore(db)
	return out
}

func eachStore(t *testing.T, fn func(t *testing.T, s gamification.Store)) {
	for name, s := range stores(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func newAccount(t *testing.T, s gamification.Store) string {
	t.Helper()
	id := "acc-" + uuid.NewString()
	created, err := s.CreateAccount(context.Background(), &models.GamificationAccount{AccountID: id, Level: 1})
	if err != nil || !created {
		t.Fatalf("create account: created=%v err=%v", created, err)
	}
	return id
}

func appendTxn(t *testing.T, s gamification.Store, accountID string, kind gamification.PointKind, amount int, at time.Time) {
	t.Helper()
	err := s.AppendTransaction(context.Background(), &models.PointTransaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Amount:    amount,
		Kind:      string(kind),
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestAccountLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s gamification.Store) {
		ctx := context.Background()
		id := newAccount(t, s)

		created, err := s.CreateAccount(ctx, &models.GamificationAccount{AccountID: id, Level: 1})
		if err != nil || created {
			t.Fatalf("second create: created=%v err=%v", created, err)
		}

		if _, err := s.GetAccount(ctx, "missing-"+uuid.NewString()); !errors.Is(err, gamification.ErrNotFound) {
			t.Fatalf("missing account err = %v", err)
		}

		err = s.Transaction(ctx, func(tx gamification.Store) error {
			acc, err := tx.LockAccount(ctx, id)
			if err != nil {
				return err
			}
			acc.TotalPoints = 0
			acc.CurrentStreak = 3
			acc.LongestStreak = 3
			acc.LastCheckInDay = "2026-03-02"
			return tx.SaveAccount(ctx, acc)
		})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := s.GetAccount(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.CurrentStreak != 3 || got.LastCheckInDay != "2026-03-02" || got.TotalPoints != 0 {
			t.Fatalf("account = %+v", got)
		}
	})
}

func TestTransactionRollsBack(t *testing.T) {
	eachStore(t, func(t *testing.T, s gamification.Store) {
		ctx := context.Background()
		id := newAccount(t, s)

		err := s.Transaction(ctx, func(tx gamification.Store) error {
			acc, err := tx.LockAccount(ctx, id)
			if err != nil {
				return err
			}
			acc.TotalPoints = 99
			if err := tx.SaveAccount(ctx, acc); err != nil {
				return err
			}
			appendTxn(t, tx, id, gamification.KindMoodLogged, 99, time.Now())
			if err := tx.InsertCheckIn(ctx, &models.DailyCheckIn{AccountID: id, Day: "2026-03-02"}); err != nil {
				return err
			}
			return errRollback
		})
		if !errors.Is(err, errRollback) {
			t.Fatalf("err = %v", err)
		}

		acc, _ := s.GetAccount(ctx, id)
		if acc.TotalPoints != 0 {
			t.Fatalf("total after rollback = %d", acc.TotalPoints)
		}
		if sum, _ := s.SumTransactions(ctx, id); sum != 0 {
			t.Fatalf("ledger after rollback = %d", sum)
		}
		if ok, _ := s.HasCheckIn(ctx, id, "2026-03-02"); ok {
			t.Fatal("check-in survived rollback")
		}
	})
}

func TestCheckInUniquePerDay(t *testing.T) {
	eachStore(t, func(t *testing.T, s gamification.Store) {
		ctx := context.Background()
		id := newAccount(t, s)

		err := s.Transaction(ctx, func(tx gamification.Store) error {
			if err := tx.InsertCheckIn(ctx, &models.DailyCheckIn{AccountID: id, Day: "2026-03-02"}); err != nil {
				return err
			}
			if err := tx.InsertCheckIn(ctx, &models.DailyCheckIn{AccountID: id, Day: "2026-03-02"}); !errors.Is(err, gamification.ErrDuplicate) {
				t.Errorf("duplicate insert err = %v", err)
			}
			// the transaction must stay usable after the duplicate
			return tx.InsertCheckIn(ctx, &models.DailyCheckIn{AccountID: id, Day: "2026-03-03"})
		})
		if err != nil {
			t.Fatalf("tx: %v", err)
		}
		for _, day := range []string{"2026-03-02", "2026-03-03"} {
			if ok, _ := s.HasCheckIn(ctx, id, day); !ok {
				t.Fatalf("missing check-in %s", day)
			}
		}
	})
}

func TestLedgerQueries(t *testing.T) {
	eachStore(t, func(t *testing.T, s gamification.Store) {
		ctx := context.Background()
		id := newAccount(t, s)
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		appendTxn(t, s, id, gamification.KindMoodLogged, 5, base)
		appendTxn(t, s, id, gamification.KindMoodLogged, 5, base.Add(24*time.Hour))
		appendTxn(t, s, id, gamification.KindPostCreated, 20, base.Add(48*time.Hour))

		txns, total, err := s.ListTransactions(ctx, id, 2, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 3 || len(txns) != 2 || txns[0].Kind != string(gamification.KindPostCreated) {
			t.Fatalf("page 1 = %d %+v", total, txns)
		}
		txns, _, _ = s.ListTransactions(ctx, id, 2, 2)
		if len(txns) != 1 || !txns[0].CreatedAt.Equal(base) {
			t.Fatalf("page 2 = %+v", txns)
		}

		counts, err := s.CountByKind(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if counts[gamification.KindMoodLogged] != 2 || counts[gamification.KindPostCreated] != 1 {
			t.Fatalf("counts = %v", counts)
		}

		if sum, _ := s.SumTransactions(ctx, id); sum != 30 {
			t.Fatalf("sum = %d", sum)
		}
		if sum, _ := s.SumTransactions(ctx, "nobody-"+uuid.NewString()); sum != 0 {
			t.Fatalf("empty sum = %d", sum)
		}

		times, err := s.ActivityTimes(ctx, id, gamification.KindMoodLogged, base.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(times) != 1 || !times[0].Equal(base.Add(24*time.Hour)) {
			t.Fatalf("activity = %v", times)
		}
	})
}

func TestBadgesAndOwnership(t *testing.T) {
	eachStore(t, func(t *testing.T, s gamification.Store) {
		ctx := context.Background()
		if err := s.UpsertBadges(ctx, gamification.CatalogModels()); err != nil {
			t.Fatal(err)
		}
		// resync must update in place
		if err := s.UpsertBadges(ctx, gamification.CatalogModels()); err != nil {
			t.Fatal(err)
		}
		all, err := s.ListBadges(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != len(gamification.Catalog()) {
			t.Fatalf("badges = %d, want %d", len(all), len(gamification.Catalog()))
		}
		badge, err := s.BadgeByName(ctx, gamification.BadgeFirstSession)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.BadgeByName(ctx, "no such badge"); !errors.Is(err, gamification.ErrBadgeNotFound) {
			t.Fatalf("missing badge err = %v", err)
		}

		id := newAccount(t, s)
		err = s.Transaction(ctx, func(tx gamification.Store) error {
			if err := tx.InsertAccountBadge(ctx, &models.AccountBadge{AccountID: id, BadgeID: badge.ID, UnlockedAt: time.Now()}); err != nil {
				return err
			}
			if err := tx.InsertAccountBadge(ctx, &models.AccountBadge{AccountID: id, BadgeID: badge.ID, UnlockedAt: time.Now()}); !errors.Is(err, gamification.ErrDuplicate) {
				t.Errorf("duplicate ownership err = %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if ok, _ := s.HasBadge(ctx, id, badge.ID); !ok {
			t.Fatal("ownership missing")
		}
		if n, _ := s.CountAccountBadges(ctx, id); n != 1 {
			t.Fatalf("count = %d", n)
		}
		owned, err := s.ListAccountBadges(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(owned) != 1 || owned[0].Badge.Name != gamification.BadgeFirstSession {
			t.Fatalf("owned = %+v", owned)
		}
	})
}

func TestListStreakingAccountsPages(t *testing.T) {
	s := repository.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		streak := 1
		if id == "c" {
			streak = 0
		}
		if _, err := s.CreateAccount(ctx, &models.GamificationAccount{AccountID: id, Level: 1, CurrentStreak: streak}); err != nil {
			t.Fatal(err)
		}
	}
	page, err := s.ListStreakingAccounts(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0] != "a" || page[1] != "b" {
		t.Fatalf("page 1 = %v", page)
	}
	page, _ = s.ListStreakingAccounts(ctx, "b", 2)
	if len(page) != 1 || page[0] != "d" {
		t.Fatalf("page 2 = %v", page)
	}
}

func TestMemoryStoreHonorsCancelledContext(t *testing.T) {
	s := repository.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Transaction(ctx, func(gamification.Store) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
