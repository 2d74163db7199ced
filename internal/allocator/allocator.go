// Package allocator выбирает, какой аккаунт и инвайт-код закроют заказ,
// с учётом срока действия и занятости.
package allocator

import (
	"sort"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// Candidate — пара «непогашенный код + снимок его аккаунта».
type Candidate struct {
	Code    domain.InviteCode
	Account domain.Account
}

// Options задаёт ограничения одного вызова выбора.
type Options struct {
	// OwnerID — заказ, под который идёт выделение; коды, зарезервированные
	// другими заказами, исключаются из кандидатов.
	OwnerID string
	// MinValidUntil — минимально допустимый срок действия аккаунта.
	MinValidUntil time.Time
	// MaxOccupancy — потолок занятости, накладываемый вызывающим поверх
	// собственного лимита мест аккаунта; 0 — только лимит аккаунта.
	MaxOccupancy int
	// Widen расширяет действующий потолок аккаунта WidenAccountID: используется,
	// когда покупатель уже участник или уже приглашён и его место фактически
	// занято. К остальным аккаунтам пула расширение не применяется — для них
	// место покупателя не занято и потолок остаётся жёстким.
	Widen int
	// WidenAccountID — аккаунт, на котором обнаружено присутствие покупателя.
	WidenAccountID string
	// Now — момент выделения; используется эвристикой предпочтения.
	Now time.Time
	// Prefer — опциональная эвристика первого прохода: сначала выбираем только
	// среди кандидатов, для которых Prefer вернула true, при пустом результате
	// откатываемся на весь отфильтрованный набор. По умолчанию предпочитаются
	// аккаунты, созданные не сегодня: свежесозданные статистически чаще
	// попадают под повторный бан.
	Prefer func(Candidate) bool
}

// Select возвращает лучшего кандидата или nil, если подходящих нет.
// Результат детерминирован для одинакового снимка пула: сортировка идёт по
// возрастанию срока действия (сначала тратим почти истёкшую ёмкость), затем
// по возрастанию занятости, затем по ID аккаунта.
func Select(pool []Candidate, opts Options) *Candidate {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Код, уже закреплённый за заказом, возвращается вне конкурса: возобновление
	// после сбоя продолжает на том же аккаунте, а не выделяет второе место.
	// Потолок занятости здесь не проверяется — приглашение могло уже уйти,
	// и собственное место покупателя не должно блокировать доведение попытки.
	for _, c := range pool {
		if c.Code.ReservedBy != opts.OwnerID || c.Code.Redeemed {
			continue
		}
		if !c.Account.Eligible() || c.Account.ExpiresAt.Before(opts.MinValidUntil) {
			continue
		}
		resumed := c
		return &resumed
	}

	filtered := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if !c.Code.AvailableFor(opts.OwnerID) {
			continue
		}
		if !c.Account.Eligible() {
			continue
		}
		if cap := effectiveCap(c.Account, opts); cap > 0 && c.Account.Occupancy() >= cap {
			continue
		}
		if c.Account.ExpiresAt.Before(opts.MinValidUntil) {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		return nil
	}

	prefer := opts.Prefer
	if prefer == nil {
		prefer = func(c Candidate) bool { return !c.Account.CreatedOn(now) }
	}

	preferred := make([]Candidate, 0, len(filtered))
	for _, c := range filtered {
		if prefer(c) {
			preferred = append(preferred, c)
		}
	}
	if len(preferred) == 0 {
		preferred = filtered
	}

	sort.Slice(preferred, func(i, j int) bool {
		a, b := preferred[i], preferred[j]
		if !a.Account.ExpiresAt.Equal(b.Account.ExpiresAt) {
			return a.Account.ExpiresAt.Before(b.Account.ExpiresAt)
		}
		if a.Account.Occupancy() != b.Account.Occupancy() {
			return a.Account.Occupancy() < b.Account.Occupancy()
		}
		if a.Account.ID != b.Account.ID {
			return a.Account.ID < b.Account.ID
		}
		return a.Code.Code < b.Code.Code
	})

	best := preferred[0]
	return &best
}

// effectiveCap возвращает действующий потолок занятости кандидата:
// минимум из лимита аккаунта и потолка вызывающего. Widen применяется только
// к аккаунту WidenAccountID и только при конечном потолке.
func effectiveCap(account domain.Account, opts Options) int {
	cap := account.MaxSeats
	if opts.MaxOccupancy > 0 && (cap == 0 || opts.MaxOccupancy < cap) {
		cap = opts.MaxOccupancy
	}
	if cap <= 0 {
		return 0
	}
	if account.ID == opts.WidenAccountID {
		cap += opts.Widen
	}
	return cap
}

// ValidityDeadline вычисляет минимально допустимый срок действия для заказа:
// оплаченный срок в днях прибавляется к более позднему из paid_at и created_at,
// а не к «сейчас» — поздняя попытка исполнения не должна урезать обещанный срок.
func ValidityDeadline(order domain.Order, defaultDays int) time.Time {
	days := order.ServiceDays
	if days <= 0 {
		days = defaultDays
	}

	anchor := order.PaidAt
	if order.CreatedAt.After(anchor) {
		anchor = order.CreatedAt
	}

	return anchor.AddDate(0, 0, days)
}
