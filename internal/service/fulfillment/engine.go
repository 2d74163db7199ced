// Package fulfillment содержит движок исполнения оплаченных заказов:
// конечный автомат одной попытки и периодический свипер.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/allocator"
	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/lock"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
	"github.com/vladislavdragonenkov/ofs/internal/retry"
)

// Стадии одной попытки; используются в метриках и логах.
const (
	StageResolveEmail = "resolve_email"
	StageValidate     = "validate_account"
	StageSync         = "sync_account"
	StageInspect      = "inspect_membership"
	StageAllocate     = "allocate_seat"
	StageInvite       = "invite_buyer"
)

// Config задаёт параметры движка.
type Config struct {
	// Policy — классификация ошибок и backoff повторов.
	Policy retry.Policy
	// DefaultServiceDays используется, когда у заказа не записан срок услуги.
	DefaultServiceDays int
	// VariantSeats переопределяет потолок занятости по варианту заказа;
	// отсутствие записи означает лимит самого аккаунта.
	VariantSeats map[string]int
	// Prefer — эвристика первого прохода аллокатора; nil — предпочитать
	// аккаунты, созданные не сегодня.
	Prefer func(allocator.Candidate) bool
}

// Deps — зависимости движка.
type Deps struct {
	Orders       domain.OrderRepository
	Accounts     domain.AccountRepository
	Codes        domain.CodeRepository
	Users        domain.UserRepository
	Reservations domain.ReservationRepository
	Sync         domain.AccountSyncService
	Notifier     domain.Notifier
	Locks        *lock.Manager
	Logger       *log.Entry
}

// Engine проводит заказ через resolve → validate → sync → allocate → invite → record.
type Engine struct {
	orders       domain.OrderRepository
	accounts     domain.AccountRepository
	codes        domain.CodeRepository
	users        domain.UserRepository
	reservations domain.ReservationRepository
	sync         domain.AccountSyncService
	notifier     domain.Notifier
	locks        *lock.Manager
	cfg          Config
	logger       *log.Entry
	metrics      *metrics.FulfillmentMetrics
	producer     *kafka.Producer // опциональный Kafka producer для событий фулфилмента
	now          func() time.Time
}

// NewEngine создаёт рабочий экземпляр движка.
func NewEngine(deps Deps, cfg Config) *Engine {
	e := newEngine(deps, cfg)
	e.metrics = metrics.NewFulfillmentMetrics()
	return e
}

// NewEngineWithKafka создаёт движок, публикующий события фулфилмента в Kafka.
func NewEngineWithKafka(deps Deps, cfg Config, producer *kafka.Producer) *Engine {
	e := NewEngine(deps, cfg)
	e.producer = producer
	return e
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(deps Deps, cfg Config) *Engine {
	return newEngine(deps, cfg)
}

func newEngine(deps Deps, cfg Config) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "fulfillment")
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewManager()
	}
	return &Engine{
		orders:       deps.Orders,
		accounts:     deps.Accounts,
		codes:        deps.Codes,
		users:        deps.Users,
		reservations: deps.Reservations,
		sync:         deps.Sync,
		notifier:     deps.Notifier,
		locks:        locks,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Process обрабатывает один заказ внутри блокировки {order, user, account}.
// Терминальные заказы не трогает: повторный свип по fulfilled/failed — no-op.
func (e *Engine) Process(ctx context.Context, orderID string) error {
	order, err := e.orders.Get(orderID)
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("order not found for fulfillment")
		return err
	}

	if order.Status.Terminal() || order.Action.StopRetry {
		e.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Debug("order already finished, skipping")
		return nil
	}

	return e.locks.WithLock(lockNames(order), func() error {
		return e.process(ctx, order)
	})
}

// lockNames возвращает набор имён блокировок одной операции.
// Набор всегда захватывается одним вызовом, никогда по одному между шагами.
func lockNames(order domain.Order) []string {
	names := []string{"order:" + order.ID, "user:" + order.UserID}
	if order.AccountID != "" {
		names = append(names, "account:"+order.AccountID)
	}
	return names
}

func (e *Engine) process(ctx context.Context, order domain.Order) error {
	start := e.now()
	if e.metrics != nil {
		e.metrics.RecordStarted()
		defer func() {
			e.metrics.RecordProcessDuration(time.Since(start))
			e.metrics.RecordFinished()
		}()
	}

	// Вход в processing фиксируется до внешних вызовов: номер попытки
	// и момент старта переживают падение процесса.
	order.Action.Attempts++
	if err := e.transition(&order, domain.OrderStatusProcessing); err != nil {
		return err
	}
	e.publishEvent(kafka.EventTypeFulfillmentStarted, order.ID, map[string]interface{}{
		"attempt": order.Action.Attempts,
	})

	logger := e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"attempt":  order.Action.Attempts,
	})

	result, err := e.execute(ctx, &order, logger)
	if err != nil {
		return e.recordFailure(&order, err, logger)
	}

	return e.recordSuccess(&order, result, logger)
}

// inviteResult — исход успешной попытки.
type inviteResult struct {
	account domain.Account
	code    domain.InviteCode
	email   string
}

// execute — последовательный конвейер стадий одной попытки.
// Все стадии до приглашения идемпотентны и безопасны для повтора.
func (e *Engine) execute(ctx context.Context, order *domain.Order, logger *log.Entry) (*inviteResult, error) {
	email, err := e.resolveEmail(order)
	if err != nil {
		return nil, err
	}
	order.Email = email

	account, err := e.validateAccount(order)
	if err != nil {
		return nil, err
	}

	if err := e.syncAccount(ctx, &account); err != nil {
		return nil, err
	}

	alreadyPresent, err := e.inspectMembership(ctx, account.ID, email)
	if err != nil {
		return nil, err
	}
	// Расширение потолка привязано к аккаунту, где покупатель обнаружен:
	// на остальных аккаунтах пула его место не занято и потолок жёсткий.
	presentOn := ""
	if alreadyPresent {
		presentOn = account.ID
		logger.WithField("account_id", account.ID).Info("buyer already present, widening occupancy ceiling")
	}

	candidate, err := e.allocateSeat(order, presentOn)
	if err != nil {
		return nil, err
	}

	return e.inviteBuyer(ctx, order, candidate, email, presentOn)
}

// resolveEmail разрешает адрес покупателя: резервация → поле заказа → профиль.
// Неразрешимый адрес — ошибка данных, не временный сбой.
func (e *Engine) resolveEmail(order *domain.Order) (string, error) {
	defer e.timeStage(StageResolveEmail, e.now())

	if reservation, err := e.reservations.GetByOrder(order.ID); err == nil && reservation.Email != "" {
		return reservation.Email, nil
	} else if err != nil && !errors.Is(err, domain.ErrReservationNotFound) {
		return "", fmt.Errorf("load reservation: %w", err)
	}

	if order.Email != "" {
		return order.Email, nil
	}

	if user, err := e.users.Get(order.UserID); err == nil && user.Email != "" {
		return user.Email, nil
	} else if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return "", fmt.Errorf("load user profile: %w", err)
	}

	return "", domain.ErrEmailUnresolved
}

// validateAccount проверяет целевой аккаунт заказа.
// Аккаунт, ставший непригодным после оформления, — терминальная ошибка данных.
func (e *Engine) validateAccount(order *domain.Order) (domain.Account, error) {
	defer e.timeStage(StageValidate, e.now())

	if order.AccountID == "" {
		return domain.Account{}, fmt.Errorf("%w: order has no target account", domain.ErrAccountIneligible)
	}

	account, err := e.accounts.Get(order.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Account{}, fmt.Errorf("%w: account %s is gone", domain.ErrAccountIneligible, order.AccountID)
		}
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !account.HasCredentials {
		return domain.Account{}, fmt.Errorf("%w: account %s", domain.ErrCredentialsMissing, account.ID)
	}
	if !account.Eligible() {
		return domain.Account{}, fmt.Errorf("%w: account %s is closed or banned", domain.ErrAccountIneligible, account.ID)
	}

	return account, nil
}

// syncAccount сверяет счётчики занятости с провайдером и сохраняет снимок.
func (e *Engine) syncAccount(ctx context.Context, account *domain.Account) error {
	defer e.timeStage(StageSync, e.now())

	members, err := e.sync.SyncMemberCount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("sync member count: %w", err)
	}
	invites, err := e.sync.SyncInviteCount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("sync invite count: %w", err)
	}

	account.MemberCount = members
	account.InviteCount = invites
	account.UpdatedAt = e.now()
	if err := e.accounts.Save(*account); err != nil {
		return fmt.Errorf("save account snapshot: %w", err)
	}

	return nil
}

// inspectMembership проверяет, не занимает ли покупатель место уже сейчас.
func (e *Engine) inspectMembership(ctx context.Context, accountID, email string) (bool, error) {
	defer e.timeStage(StageInspect, e.now())
	return e.buyerPresent(ctx, accountID, email)
}

func (e *Engine) buyerPresent(ctx context.Context, accountID, email string) (bool, error) {
	members, err := e.sync.ListMembers(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("list members: %w", err)
	}
	invites, err := e.sync.ListInvites(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("list invites: %w", err)
	}

	return containsEmail(members, email) || containsEmail(invites, email), nil
}

// allocateSeat выбирает код и аккаунт под заказ из всего пула.
// presentOn — аккаунт, где место покупателя уже занято ("" — нигде).
func (e *Engine) allocateSeat(order *domain.Order, presentOn string) (*allocator.Candidate, error) {
	defer e.timeStage(StageAllocate, e.now())

	pool, err := e.buildPool(order.ID)
	if err != nil {
		return nil, err
	}

	widen := 0
	if presentOn != "" {
		// Место на этом аккаунте фактически уже занято покупателем:
		// повтор не должен упереться в потолок занятости.
		widen = 1
	}

	candidate := allocator.Select(pool, allocator.Options{
		OwnerID:        order.ID,
		MinValidUntil:  allocator.ValidityDeadline(*order, e.cfg.DefaultServiceDays),
		MaxOccupancy:   e.cfg.VariantSeats[order.Variant],
		Widen:          widen,
		WidenAccountID: presentOn,
		Now:            e.now(),
		Prefer:         e.cfg.Prefer,
	})
	if candidate == nil {
		return nil, domain.ErrNoCapacity
	}

	return candidate, nil
}

// buildPool собирает кандидатов: доступные коды вместе со снимками их аккаунтов.
// Аккаунты читаются одним снимком: выбор по всему пулу не должен делать
// по запросу на каждый код.
func (e *Engine) buildPool(orderID string) ([]allocator.Candidate, error) {
	codes, err := e.codes.ListAvailable(orderID)
	if err != nil {
		return nil, fmt.Errorf("list available codes: %w", err)
	}

	accounts, err := e.accounts.List()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	byID := make(map[string]domain.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}

	pool := make([]allocator.Candidate, 0, len(codes))
	for _, code := range codes {
		account, ok := byID[code.AccountID]
		if !ok {
			// Код без живого аккаунта — не кандидат.
			continue
		}
		pool = append(pool, allocator.Candidate{Code: code, Account: account})
	}

	return pool, nil
}

// inviteBuyer резервирует код, отправляет приглашение и гасит код.
// Секция сериализуется по выделенному аккаунту: два заказа, претендующие на
// один аккаунт, не могут вместе протолкнуть занятость за потолок.
func (e *Engine) inviteBuyer(ctx context.Context, order *domain.Order, candidate *allocator.Candidate, email string, presentOn string) (*inviteResult, error) {
	defer e.timeStage(StageInvite, e.now())

	var result *inviteResult
	err := e.locks.WithLock([]string{"alloc:" + candidate.Account.ID}, func() error {
		// Перечитываем аккаунт: пока мы выбирали, параллельный заказ мог
		// занять последнее место.
		account, err := e.accounts.Get(candidate.Account.ID)
		if err != nil {
			return fmt.Errorf("reload account: %w", err)
		}

		// Возобновление: код уже закреплён за заказом прошлой попыткой.
		// Приглашение могло уйти до падения процесса — проверяем провайдера,
		// чтобы не пригласить покупателя второй раз.
		resumed := candidate.Code.ReservedBy == order.ID
		invited := false
		if resumed {
			invited, err = e.buyerPresent(ctx, account.ID, email)
			if err != nil {
				return err
			}
		}

		capacity := account.MaxSeats
		if v := e.cfg.VariantSeats[order.Variant]; v > 0 && (capacity == 0 || v < capacity) {
			capacity = v
		}
		// Расширяем потолок только на этом аккаунте и только когда он конечен:
		// место покупателя здесь уже занято и не должно блокировать попытку.
		if capacity > 0 && (presentOn == account.ID || invited) {
			capacity++
		}
		if !account.Eligible() || (capacity > 0 && account.Occupancy() >= capacity) {
			return domain.ErrNoCapacity
		}

		code := candidate.Code
		if !resumed {
			code.ReservedBy = order.ID
			code.UpdatedAt = e.now()
			if err := e.codes.Save(code); err != nil {
				return fmt.Errorf("reserve code: %w", err)
			}
		}

		if !invited {
			if err := e.sync.Invite(ctx, account.ID, email); err != nil {
				// Код остаётся зарезервированным за заказом: повторная попытка
				// использует его же, чужие заказы его не видят.
				return fmt.Errorf("invite buyer: %w", err)
			}
		}

		code.Redeemed = true
		code.UpdatedAt = e.now()
		if err := e.codes.Save(code); err != nil {
			return fmt.Errorf("redeem code: %w", err)
		}

		if !invited {
			// Консервативно завышаем занятость до следующей синхронизации.
			account.InviteCount++
		}
		account.UpdatedAt = e.now()
		if err := e.accounts.Save(account); err != nil {
			return fmt.Errorf("save occupancy: %w", err)
		}

		result = &inviteResult{account: account, code: code, email: email}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// recordSuccess переводит заказ в fulfilled и обновляет ссылку пользователя.
func (e *Engine) recordSuccess(order *domain.Order, result *inviteResult, logger *log.Entry) error {
	order.AccountID = result.account.ID
	order.Action.LastError = ""
	order.Action.NextRetryAt = nil
	order.Action.Message = fmt.Sprintf(
		"invited %s into %s, occupancy %d/%d",
		result.email, result.account.Email, result.account.Occupancy(), result.account.MaxSeats,
	)
	if err := e.transition(order, domain.OrderStatusFulfilled); err != nil {
		return err
	}

	if err := e.users.SetCurrentAccount(order.UserID, result.account.ID); err != nil {
		// Ссылка используется только для отображения и аудита.
		logger.WithError(err).Warn("failed to update user current account")
	}

	logger.WithField("account_id", result.account.ID).Info("order fulfilled")
	if e.metrics != nil {
		e.metrics.RecordFulfilled()
	}
	e.publishEvent(kafka.EventTypeFulfillmentDone, order.ID, map[string]interface{}{
		"account_id": result.account.ID,
		"attempt":    order.Action.Attempts,
	})

	return nil
}

// recordFailure классифицирует ошибку и переводит заказ в retrying либо failed.
func (e *Engine) recordFailure(order *domain.Order, cause error, logger *log.Entry) error {
	order.Action.LastError = cause.Error()

	retryable := e.cfg.Policy.Classify(cause) == retry.ClassRetryable
	exhausted := e.cfg.Policy.Exhausted(order.Action.Attempts)

	if retryable && !exhausted {
		next := e.now().Add(e.cfg.Policy.NextDelay(order.Action.Attempts))
		order.Action.NextRetryAt = &next
		if err := e.transition(order, domain.OrderStatusRetrying); err != nil {
			return err
		}
		logger.WithError(cause).WithField("next_retry_at", next).Warn("fulfillment attempt failed, will retry")
		if e.metrics != nil {
			e.metrics.RecordRetried()
		}
		e.publishEvent(kafka.EventTypeFulfillmentRetrying, order.ID, map[string]interface{}{
			"attempt": order.Action.Attempts,
			"error":   cause.Error(),
		})
		return nil
	}

	order.Action.StopRetry = true
	order.Action.NextRetryAt = nil
	if exhausted && retryable {
		order.Action.Message = fmt.Sprintf("gave up after %d attempts: %s", order.Action.Attempts, cause)
	} else {
		order.Action.Message = cause.Error()
	}
	if err := e.transition(order, domain.OrderStatusFailed); err != nil {
		return err
	}

	logger.WithError(cause).Error("order failed terminally")
	if e.metrics != nil {
		e.metrics.RecordFailed()
	}
	e.publishEvent(kafka.EventTypeFulfillmentFailed, order.ID, map[string]interface{}{
		"attempt": order.Action.Attempts,
		"error":   cause.Error(),
	})

	e.alertOnce(order, cause, logger)
	return nil
}

// alertOnce отправляет одноразовое оповещение о терминальном отказе.
// Флаг отправки персистится, поэтому рестарт оповещение не дублирует.
func (e *Engine) alertOnce(order *domain.Order, cause error, logger *log.Entry) {
	if order.Action.AlertSentAt != nil {
		return
	}

	now := e.now()
	order.Action.AlertSentAt = &now
	order.UpdatedAt = now
	if err := e.orders.Save(*order); err != nil {
		logger.WithError(err).Warn("failed to persist alert flag")
		return
	}

	if e.notifier != nil {
		subject := fmt.Sprintf("fulfillment failed: order %s", order.ID)
		body := fmt.Sprintf("order %s for user %s failed after %d attempt(s): %s",
			order.ID, order.UserID, order.Action.Attempts, cause)
		if err := e.notifier.Notify(subject, body); err != nil {
			// Оповещение — fire-and-forget: сбой доставки не влияет на заказ.
			logger.WithError(err).Warn("failed to notify operator")
		}
	}
	if e.metrics != nil {
		e.metrics.RecordAlert()
	}
}

// transition меняет статус и персистит заказ; запись видна до выхода из секции.
func (e *Engine) transition(order *domain.Order, status domain.OrderStatus) error {
	order.Status = status
	order.UpdatedAt = e.now()
	if err := e.orders.Save(*order); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"status":   status,
		}).Error("failed to persist status")
		return err
	}
	return nil
}

func (e *Engine) timeStage(stage string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordStageDuration(stage, time.Since(start))
	}
}

// publishEvent публикует событие фулфилмента в Kafka (если producer настроен).
func (e *Engine) publishEvent(eventType kafka.EventType, orderID string, metadata map[string]interface{}) {
	if e.producer == nil {
		return
	}

	event := kafka.NewFulfillmentEvent(eventType, orderID, metadata)
	if err := e.producer.PublishEvent(kafka.TopicFulfillmentEvents, orderID, event); err != nil {
		// Логируем ошибку, но не прерываем обработку — Kafka опциональна.
		e.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish fulfillment event to kafka")
	}
}

func containsEmail(list []string, email string) bool {
	for _, item := range list {
		if strings.EqualFold(item, email) {
			return true
		}
	}
	return false
}
