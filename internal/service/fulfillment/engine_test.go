package fulfillment_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/accountsync"
	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/retry"
	"github.com/vladislavdragonenkov/ofs/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
)

// recordingNotifier фиксирует отправленные оповещения.
type recordingNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *recordingNotifier) Notify(subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subjects)
}

// userSeeder открывает метод заполнения фикстур in-memory реализации.
type userSeeder interface {
	Put(user domain.User)
}

type fixture struct {
	engine       *fulfillment.Engine
	orders       domain.OrderRepository
	accounts     domain.AccountRepository
	codes        domain.CodeRepository
	users        domain.UserRepository
	reservations domain.ReservationRepository
	sync         *accountsync.MockService
	notifier     *recordingNotifier
}

func newFixture(cfg fulfillment.Config) *fixture {
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	if cfg.DefaultServiceDays == 0 {
		cfg.DefaultServiceDays = 30
	}

	f := &fixture{
		orders:       memory.NewOrderRepository(),
		accounts:     memory.NewAccountRepository(),
		codes:        memory.NewCodeRepository(),
		users:        memory.NewUserRepository(),
		reservations: memory.NewReservationRepository(),
		sync:         accountsync.NewMockService(),
		notifier:     &recordingNotifier{},
	}
	f.engine = fulfillment.NewEngineWithoutMetrics(fulfillment.Deps{
		Orders:       f.orders,
		Accounts:     f.accounts,
		Codes:        f.codes,
		Users:        f.users,
		Reservations: f.reservations,
		Sync:         f.sync,
		Notifier:     f.notifier,
	}, cfg)
	return f
}

func (f *fixture) seedAccount(t *testing.T, id string, maxSeats int) {
	t.Helper()
	now := time.Now().UTC()
	if err := f.accounts.Save(domain.Account{
		ID:             id,
		Email:          id + "@provider.example",
		MaxSeats:       maxSeats,
		ExpiresAt:      now.Add(90 * 24 * time.Hour),
		Open:           true,
		HasCredentials: true,
		CreatedAt:      now.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
}

func (f *fixture) seedCode(t *testing.T, code, accountID string) {
	t.Helper()
	if err := f.codes.Save(domain.InviteCode{Code: code, AccountID: accountID}); err != nil {
		t.Fatalf("seed code failed: %v", err)
	}
}

func (f *fixture) seedOrder(t *testing.T, id, email, accountID string) {
	t.Helper()
	now := time.Now().UTC()
	if err := f.orders.Create(domain.Order{
		ID:          id,
		UserID:      "user-" + id,
		Email:       email,
		AccountID:   accountID,
		ServiceDays: 30,
		Status:      domain.OrderStatusUnprocessed,
		PaidAt:      now.Add(-time.Hour),
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
}

func (f *fixture) mustGetOrder(t *testing.T, id string) domain.Order {
	t.Helper()
	order, err := f.orders.Get(id)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	return order
}

func TestEngine_FulfillsOrder(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")
	f.users.(userSeeder).Put(domain.User{ID: "user-order-1"})

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
	if order.Action.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", order.Action.Attempts)
	}
	if !strings.Contains(order.Action.Message, "invited buyer@example.com") {
		t.Fatalf("unexpected message: %s", order.Action.Message)
	}

	code, err := f.codes.Get("code-1")
	if err != nil {
		t.Fatalf("get code failed: %v", err)
	}
	if !code.Redeemed || code.ReservedBy != "order-1" {
		t.Fatalf("expected code redeemed by order-1, got %+v", code)
	}

	account, err := f.accounts.Get("acc-1")
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.InviteCount != 1 {
		t.Fatalf("expected invite count 1, got %d", account.InviteCount)
	}

	user, err := f.users.Get("user-order-1")
	if err != nil {
		t.Fatalf("get user failed: %v", err)
	}
	if user.CurrentAccountID != "acc-1" {
		t.Fatalf("expected current account acc-1, got %s", user.CurrentAccountID)
	}

	if len(f.sync.Invited) != 1 || f.sync.Invited[0] != "buyer@example.com" {
		t.Fatalf("unexpected invites: %v", f.sync.Invited)
	}
}

func TestEngine_UnresolvedEmailFailsWithoutRetry(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "", "acc-1")

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", order.Status)
	}
	if !order.Action.StopRetry {
		t.Fatal("expected stop_retry to be set")
	}
	if order.Action.NextRetryAt != nil {
		t.Fatal("data error must not schedule a retry")
	}
	if order.Action.Attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", order.Action.Attempts)
	}
	if order.Action.AlertSentAt == nil {
		t.Fatal("expected alert flag to be persisted")
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", f.notifier.count())
	}
	if f.sync.InviteCalls != 0 {
		t.Fatalf("no invite expected, got %d calls", f.sync.InviteCalls)
	}
}

func TestEngine_ResolvesEmailFromReservation(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "", "acc-1")
	if err := f.reservations.Put(domain.Reservation{OrderID: "order-1", Email: "queued@example.com"}); err != nil {
		t.Fatalf("put reservation failed: %v", err)
	}

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
	if order.Email != "queued@example.com" {
		t.Fatalf("expected reservation email on order, got %s", order.Email)
	}
	if len(f.sync.Invited) != 1 || f.sync.Invited[0] != "queued@example.com" {
		t.Fatalf("unexpected invites: %v", f.sync.Invited)
	}
}

func TestEngine_ResolvesEmailFromUserProfile(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "", "acc-1")
	f.users.(userSeeder).Put(domain.User{ID: "user-order-1", Email: "profile@example.com"})

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
	if len(f.sync.Invited) != 1 || f.sync.Invited[0] != "profile@example.com" {
		t.Fatalf("unexpected invites: %v", f.sync.Invited)
	}
}

func TestEngine_RecoversAfterRateLimits(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")

	f.sync.InviteErrs = []error{
		domain.NewStatusError("invite", 429, nil),
		domain.NewStatusError("invite", 429, nil),
		domain.NewStatusError("invite", 429, nil),
	}

	for i := 0; i < 3; i++ {
		if err := f.engine.Process(context.Background(), "order-1"); err != nil {
			t.Fatalf("process %d failed: %v", i+1, err)
		}
		order := f.mustGetOrder(t, "order-1")
		if order.Status != domain.OrderStatusRetrying {
			t.Fatalf("attempt %d: expected retrying, got %s", i+1, order.Status)
		}
		if order.Action.NextRetryAt == nil {
			t.Fatalf("attempt %d: expected next_retry_at to be scheduled", i+1)
		}

		// Код остаётся зарезервированным за заказом между попытками.
		code, err := f.codes.Get("code-1")
		if err != nil {
			t.Fatalf("get code failed: %v", err)
		}
		if code.ReservedBy != "order-1" || code.Redeemed {
			t.Fatalf("attempt %d: unexpected code state %+v", i+1, code)
		}
	}

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("final process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
	if order.Action.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", order.Action.Attempts)
	}
	if f.notifier.count() != 0 {
		t.Fatalf("recovered order must not alert, got %d", f.notifier.count())
	}
}

func TestEngine_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(fulfillment.Config{
		Policy: retry.Policy{BaseDelay: time.Minute, MaxDelay: time.Hour, MaxAttempts: 2},
	})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")

	f.sync.InviteErr = domain.NewStatusError("invite", 429, nil)

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	if order := f.mustGetOrder(t, "order-1"); order.Status != domain.OrderStatusRetrying {
		t.Fatalf("expected retrying after first attempt, got %s", order.Status)
	}

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("second process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed after exhaustion, got %s", order.Status)
	}
	if !order.Action.StopRetry {
		t.Fatal("expected stop_retry after exhaustion")
	}
	if !strings.Contains(order.Action.Message, "gave up after 2 attempts") {
		t.Fatalf("unexpected message: %s", order.Action.Message)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", f.notifier.count())
	}
}

func TestEngine_NoCapacityIsRetryable(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")
	// Кодов в пуле нет: выделить место не из чего.

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusRetrying {
		t.Fatalf("expected retrying, got %s", order.Status)
	}
	if order.Action.NextRetryAt == nil {
		t.Fatal("expected next_retry_at to be scheduled")
	}
	if f.notifier.count() != 0 {
		t.Fatalf("retryable failure must not alert, got %d", f.notifier.count())
	}
}

func TestEngine_IneligibleAccountFailsTerminally(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	now := time.Now().UTC()
	if err := f.accounts.Save(domain.Account{
		ID:             "acc-banned",
		MaxSeats:       5,
		ExpiresAt:      now.Add(90 * 24 * time.Hour),
		Open:           true,
		Banned:         true,
		HasCredentials: true,
	}); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-banned")

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", order.Status)
	}
	if !strings.Contains(order.Action.LastError, "ineligible") {
		t.Fatalf("unexpected last error: %s", order.Action.LastError)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", f.notifier.count())
	}
}

func TestEngine_SkipsTerminalOrders(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	now := time.Now().UTC()
	if err := f.orders.Create(domain.Order{
		ID:     "order-done",
		UserID: "user-1",
		Email:  "buyer@example.com",
		Status: domain.OrderStatusFulfilled,
		PaidAt: now,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f.engine.Process(context.Background(), "order-done"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-done")
	if order.Status != domain.OrderStatusFulfilled || order.Action.Attempts != 0 {
		t.Fatalf("terminal order must stay untouched, got %+v", order)
	}
	if f.sync.SyncMembersCalls != 0 || f.sync.InviteCalls != 0 {
		t.Fatal("terminal order must not reach external service")
	}
}

func TestEngine_AlertsOnlyOnce(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedOrder(t, "order-1", "", "")

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", f.notifier.count())
	}

	// Повторный свип по упавшему заказу не дублирует оповещение.
	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("second process failed: %v", err)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected alert to stay deduplicated, got %d", f.notifier.count())
	}
}

func TestEngine_WidensCeilingWhenBuyerAlreadyPresent(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 2)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")

	// Аккаунт полон, но одно из мест занято самим покупателем.
	f.sync.Members["acc-1"] = []string{"Buyer@Example.com", "other@example.com"}

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
}

func TestEngine_WidenDoesNotLeakToOtherAccounts(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	now := time.Now().UTC()

	// Покупатель уже занимает место на целевом аккаунте, но кодов на нём нет.
	f.seedAccount(t, "acc-x", 3)
	f.sync.Members["acc-x"] = []string{"buyer@example.com"}

	// Единственный код пула — на чужом аккаунте, заполненном под потолок.
	if err := f.accounts.Save(domain.Account{
		ID:             "acc-y",
		MaxSeats:       2,
		MemberCount:    2,
		ExpiresAt:      now.Add(90 * 24 * time.Hour),
		Open:           true,
		HasCredentials: true,
		CreatedAt:      now.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	f.seedCode(t, "code-y", "acc-y")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-x")

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	// Расширение потолка действует только на acc-x: полный acc-y недоступен.
	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusRetrying {
		t.Fatalf("expected retrying, got %s (%s)", order.Status, order.Action.LastError)
	}
	account, err := f.accounts.Get("acc-y")
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.Occupancy() > account.MaxSeats {
		t.Fatalf("occupancy %d exceeds max %d", account.Occupancy(), account.MaxSeats)
	}
	if f.sync.InviteCalls != 0 {
		t.Fatalf("no invite expected into a full foreign account, got %d calls", f.sync.InviteCalls)
	}
}

func TestEngine_ResumesReservedCodeAfterCrash(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	now := time.Now().UTC()

	f.seedAccount(t, "acc-x", 5)

	// Прошлая попытка успела пригласить покупателя на acc-z и зарезервировать
	// код, но упала до его погашения.
	if err := f.accounts.Save(domain.Account{
		ID:             "acc-z",
		MaxSeats:       2,
		InviteCount:    1,
		ExpiresAt:      now.Add(90 * 24 * time.Hour),
		Open:           true,
		HasCredentials: true,
		CreatedAt:      now.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	if err := f.codes.Save(domain.InviteCode{Code: "code-z", AccountID: "acc-z", ReservedBy: "order-1"}); err != nil {
		t.Fatalf("seed code failed: %v", err)
	}
	f.sync.Invites["acc-z"] = []string{"buyer@example.com"}

	// Свободный аккаунт выглядит привлекательнее, но выделять второе место нельзя.
	f.seedAccount(t, "acc-free", 5)
	f.seedCode(t, "code-free", "acc-free")

	f.seedOrder(t, "order-1", "buyer@example.com", "acc-x")

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
	if order.AccountID != "acc-z" {
		t.Fatalf("expected resume on acc-z, got %s", order.AccountID)
	}
	if f.sync.InviteCalls != 0 {
		t.Fatalf("buyer already invited, expected 0 invite calls, got %d", f.sync.InviteCalls)
	}

	codeZ, err := f.codes.Get("code-z")
	if err != nil {
		t.Fatalf("get code failed: %v", err)
	}
	if !codeZ.Redeemed || codeZ.ReservedBy != "order-1" {
		t.Fatalf("expected reserved code redeemed, got %+v", codeZ)
	}
	codeFree, err := f.codes.Get("code-free")
	if err != nil {
		t.Fatalf("get code failed: %v", err)
	}
	if codeFree.Redeemed || codeFree.ReservedBy != "" {
		t.Fatalf("free code must stay untouched, got %+v", codeFree)
	}

	// Висящее приглашение уже учтено в занятости: второй раз не считаем.
	account, err := f.accounts.Get("acc-z")
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.InviteCount != 1 {
		t.Fatalf("expected invite count to stay 1, got %d", account.InviteCount)
	}
}

func TestEngine_UnlimitedAccountAdmitsPresentBuyer(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	// MaxSeats 0 — потолка нет; присутствие покупателя не должно его создавать.
	f.seedAccount(t, "acc-1", 0)
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")
	f.sync.Members["acc-1"] = []string{"buyer@example.com", "other@example.com"}

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled on unlimited account, got %s (%s)", order.Status, order.Action.LastError)
	}
}

func TestEngine_SkipsCodesWithoutAccount(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-ghost", "acc-gone")
	f.seedCode(t, "code-1", "acc-1")
	f.seedOrder(t, "order-1", "buyer@example.com", "acc-1")

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusFulfilled {
		t.Fatalf("expected fulfilled, got %s (%s)", order.Status, order.Action.LastError)
	}
	if order.AccountID != "acc-1" {
		t.Fatalf("expected allocation on acc-1, got %s", order.AccountID)
	}
}

func TestEngine_NoDoubleAllocation(t *testing.T) {
	f := newFixture(fulfillment.Config{})
	f.seedAccount(t, "acc-a", 5)
	f.seedAccount(t, "acc-b", 5)
	// Единственное свободное место — в общем пуле на acc-pool.
	f.seedAccount(t, "acc-pool", 1)
	f.seedCode(t, "code-1", "acc-pool")
	f.seedCode(t, "code-2", "acc-pool")
	f.seedOrder(t, "order-1", "first@example.com", "acc-a")
	f.seedOrder(t, "order-2", "second@example.com", "acc-b")

	var wg sync.WaitGroup
	for _, id := range []string{"order-1", "order-2"} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_ = f.engine.Process(context.Background(), orderID)
		}(id)
	}
	wg.Wait()

	fulfilled := 0
	retrying := 0
	for _, id := range []string{"order-1", "order-2"} {
		switch order := f.mustGetOrder(t, id); order.Status {
		case domain.OrderStatusFulfilled:
			fulfilled++
		case domain.OrderStatusRetrying:
			retrying++
		default:
			t.Fatalf("unexpected status for %s: %s (%s)", id, order.Status, order.Action.LastError)
		}
	}
	if fulfilled != 1 || retrying != 1 {
		t.Fatalf("expected exactly one winner, got fulfilled=%d retrying=%d", fulfilled, retrying)
	}

	account, err := f.accounts.Get("acc-pool")
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.Occupancy() > 1 {
		t.Fatalf("occupancy ceiling breached: %d", account.Occupancy())
	}
	if f.sync.InviteCalls != 1 {
		t.Fatalf("expected exactly 1 invite call, got %d", f.sync.InviteCalls)
	}
}

func TestEngine_VariantCeilingOverridesAccountLimit(t *testing.T) {
	f := newFixture(fulfillment.Config{
		VariantSeats: map[string]int{"solo": 1},
	})
	f.seedAccount(t, "acc-1", 5)
	f.seedCode(t, "code-1", "acc-1")

	now := time.Now().UTC()
	if err := f.orders.Create(domain.Order{
		ID:          "order-1",
		UserID:      "user-1",
		Email:       "buyer@example.com",
		AccountID:   "acc-1",
		Variant:     "solo",
		ServiceDays: 30,
		Status:      domain.OrderStatusUnprocessed,
		PaidAt:      now,
		CreatedAt:   now,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Потолок варианта — одно место, и оно уже занято.
	f.sync.Members["acc-1"] = []string{"other@example.com"}

	if err := f.engine.Process(context.Background(), "order-1"); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	order := f.mustGetOrder(t, "order-1")
	if order.Status != domain.OrderStatusRetrying {
		t.Fatalf("expected retrying on variant ceiling, got %s (%s)", order.Status, order.Action.LastError)
	}
}
