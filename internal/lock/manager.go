// Package lock реализует именованные взаимоисключающие секции для задач фулфилмента.
package lock

import (
	"sort"
	"sync"
)

// entry — мьютекс одного имени с подсчётом ссылок для очистки карты.
type entry struct {
	mu   sync.Mutex
	refs int
}

// Manager выдаёт эксклюзивные блокировки по набору имён.
// Набор захватывается одним вызовом, по отсортированному порядку имён,
// поэтому пересекающиеся наборы не могут образовать цикл ожидания.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager создаёт пустой менеджер блокировок.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// WithLock захватывает все имена из names, выполняет fn и освобождает блокировки
// на любом пути выхода. Ошибка fn пробрасывается вызывающему.
// Захват не имеет таймаута: время удержания ограничено одной попыткой фулфилмента.
func (m *Manager) WithLock(names []string, fn func() error) error {
	acquired := m.acquire(names)
	defer m.release(acquired)

	return fn()
}

// acquire резервирует и захватывает мьютексы в детерминированном порядке.
func (m *Manager) acquire(names []string) []string {
	ordered := dedupe(names)

	m.mu.Lock()
	for _, name := range ordered {
		e, ok := m.entries[name]
		if !ok {
			e = &entry{}
			m.entries[name] = e
		}
		e.refs++
	}
	m.mu.Unlock()

	for _, name := range ordered {
		m.entry(name).mu.Lock()
	}

	return ordered
}

// release отпускает мьютексы в обратном порядке и удаляет неиспользуемые записи.
func (m *Manager) release(names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		m.entry(names[i]).mu.Unlock()
	}

	m.mu.Lock()
	for _, name := range names {
		e := m.entries[name]
		e.refs--
		if e.refs == 0 {
			delete(m.entries, name)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) entry(name string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[name]
}

// dedupe сортирует имена и убирает дубликаты, чтобы один вызов
// не пытался захватить одно имя дважды.
func dedupe(names []string) []string {
	ordered := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)
	return ordered
}
