package tests

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/vintrack/cellar/internal/adapter/storage"
	"github.com/vintrack/cellar/internal/core/domain"
	"github.com/vintrack/cellar/internal/core/service"
)

type testEnv struct {
	db      *sql.DB
	mysql   *storage.MySQLAdapter
	auth    *service.AuthService
	ledger  *service.LedgerService
	reports *service.ReportService
	audits  *service.AuditService
}

func setupTestEnv(t *testing.T) *testEnv {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/cellar_test?parseTime=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() {
		redisClient.Close()
		db.Close()
	})

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	redisAdapter := storage.NewRedisAdapter(redisClient)

	return &testEnv{
		db:      db,
		mysql:   mysqlAdapter,
		auth:    service.NewAuthService(mysqlAdapter, mysqlAdapter, redisAdapter, service.AuthConfig{SigningKey: []byte("integration-test-key")}),
		ledger:  service.NewLedgerService(mysqlAdapter),
		reports: service.NewReportService(mysqlAdapter, redisAdapter, time.Second),
		audits:  service.NewAuditService(mysqlAdapter),
	}
}

func (env *testEnv) createUser(t *testing.T, role domain.Role, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := env.mysql.CreateUser(context.Background(), domain.User{
		Email:        "itest-" + uuid.NewString() + "@cellar.test",
		PasswordHash: string(hash),
		Name:         "Integration " + string(role),
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		env.db.Exec(`DELETE FROM audit_logs WHERE user_id = ?`, u.ID)
		env.db.Exec(`DELETE FROM users WHERE id = ?`, u.ID)
	})
	return u
}

func (env *testEnv) createWine(t *testing.T, name string, stock int) int64 {
	t.Helper()
	res, err := env.db.Exec(`
		INSERT INTO wines (name, vintage_year, region, current_stock, low_stock_threshold)
		VALUES (?, 2019, 'Bordeaux', ?, 10)`, name, stock)
	if err != nil {
		t.Fatalf("create wine: %v", err)
	}
	id, _ := res.LastInsertId()
	t.Cleanup(func() {
		env.db.Exec(`DELETE FROM audit_logs WHERE entity_type = 'wine' AND entity_id = ?`, id)
		env.db.Exec(`DELETE FROM wines WHERE id = ?`, id)
	})
	return id
}

// Exercises the full write path: login, stock movements through the locked
// transaction, the rejected over-draw, and the read side that hangs off it.
func TestStockFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	password := "integration"
	admin := env.createUser(t, domain.RoleAdmin, password)
	wineID := env.createWine(t, "Flow "+uuid.NewString(), 100)

	session, err := env.auth.Login(ctx, admin.Email, password, false, "127.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := env.auth.Validate(ctx, session.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if _, err := env.ledger.StockIn(ctx, wineID, 50, "delivery", actor); err != nil {
		t.Fatalf("stock in: %v", err)
	}
	if _, err := env.ledger.StockOut(ctx, wineID, 30, "tasting", actor); err != nil {
		t.Fatalf("stock out: %v", err)
	}

	_, err = env.ledger.StockOut(ctx, wineID, 10000, "bulk", actor)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Current != 120 {
		t.Errorf("reported stock %d, want 120", insufficient.Current)
	}

	wine, err := env.mysql.GetWine(ctx, wineID)
	if err != nil {
		t.Fatalf("get wine: %v", err)
	}
	if wine.CurrentStock != 120 {
		t.Errorf("final stock %d, want 120", wine.CurrentStock)
	}

	movements, err := env.ledger.MovementsForWine(ctx, wineID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	signed := 100
	for _, m := range movements {
		if m.Direction == domain.DirectionIn {
			signed += m.Quantity
		} else {
			signed -= m.Quantity
		}
	}
	if signed != wine.CurrentStock {
		t.Errorf("stock %d diverges from signed movement sum %d", wine.CurrentStock, signed)
	}
	// Newest first.
	if movements[0].Direction != domain.DirectionOut {
		t.Errorf("expected the stock-out first, got %s", movements[0].Direction)
	}

	summary, err := env.reports.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.WineCount < 1 {
		t.Errorf("summary wine count %d, want at least 1", summary.WineCount)
	}
}

func TestConcurrentStockOut(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	actor := env.createUser(t, domain.RoleAdmin, "integration")
	wineID := env.createWine(t, "Race "+uuid.NewString(), 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.ledger.StockOut(ctx, wineID, 80, "race", actor)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly 1 winner, got %d", successes)
	}

	wine, err := env.mysql.GetWine(ctx, wineID)
	if err != nil {
		t.Fatalf("get wine: %v", err)
	}
	if wine.CurrentStock != 20 {
		t.Errorf("final stock %d, want 20", wine.CurrentStock)
	}
}

func TestAuditScoping(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	password := "integration"
	admin := env.createUser(t, domain.RoleAdmin, password)
	regular := env.createUser(t, domain.RoleUser, password)

	// One login audit entry per user.
	if _, err := env.auth.Login(ctx, admin.Email, password, false, ""); err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if _, err := env.auth.Login(ctx, regular.Email, password, false, ""); err != nil {
		t.Fatalf("user login: %v", err)
	}

	page, err := env.audits.List(ctx, regular, domain.AuditFilter{}, 1, 100)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(page.Items) == 0 {
		t.Fatal("expected the user to see their own login entry")
	}
	var ownEntry int64
	for _, entry := range page.Items {
		if entry.UserID != regular.ID {
			t.Errorf("non-admin saw audit entry for user %d", entry.UserID)
		}
		ownEntry = entry.ID
	}

	// Admin sees the regular user's entries and can open them directly.
	adminPage, err := env.audits.List(ctx, admin, domain.AuditFilter{UserID: regular.ID}, 1, 100)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(adminPage.Items) == 0 {
		t.Error("admin filter by user returned nothing")
	}
	if _, err := env.audits.Get(ctx, admin, ownEntry); err != nil {
		t.Errorf("admin get: %v", err)
	}

	// The regular user cannot open an admin-owned entry.
	ownPage, err := env.audits.List(ctx, admin, domain.AuditFilter{UserID: admin.ID}, 1, 1)
	if err != nil || len(ownPage.Items) == 0 {
		t.Fatalf("admin own entries: %v", err)
	}
	adminEntry := ownPage.Items[0].ID
	if _, err := env.audits.Get(ctx, regular, adminEntry); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	user := env.createUser(t, domain.RoleUser, "oldpassword")

	token, err := env.auth.IssueResetToken(ctx, user.Email)
	if err != nil {
		t.Fatalf("issue reset token: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	if err := env.auth.ConsumeResetToken(ctx, token, "newpassword"); err != nil {
		t.Fatalf("consume reset token: %v", err)
	}

	if _, err := env.auth.Login(ctx, user.Email, "oldpassword", false, ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("old password still accepted: %v", err)
	}
	if _, err := env.auth.Login(ctx, user.Email, "newpassword", false, ""); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	// Single use.
	if err := env.auth.ConsumeResetToken(ctx, token, "anotherpassword"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken on replay, got %v", err)
	}
}
