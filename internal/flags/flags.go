// Package flags содержит реализации domain.FeatureFlags.
package flags

import (
	"os"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// envFlags читает флаги из переменных окружения: флаг name включён,
// если FLAG_<NAME> не равен "0"/"false"/"off". Отсутствующая переменная
// означает включённый флаг — выключение всегда явное.
type envFlags struct {
	prefix string
}

// FromEnv возвращает FeatureFlags поверх переменных окружения.
func FromEnv() domain.FeatureFlags {
	return &envFlags{prefix: "FLAG_"}
}

func (f *envFlags) IsEnabled(name string) bool {
	key := f.prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	value, ok := os.LookupEnv(key)
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "false", "off", "no":
		return false
	default:
		return true
	}
}

// Static — in-memory реализация для тестов и локальной разработки.
type Static struct {
	mu       sync.RWMutex
	disabled map[string]bool
}

// NewStatic возвращает флаги, у которых всё включено по умолчанию.
func NewStatic() *Static {
	return &Static{disabled: make(map[string]bool)}
}

// Set включает или выключает флаг.
func (s *Static) Set(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[name] = !enabled
}

func (s *Static) IsEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled[name]
}

var _ domain.FeatureFlags = (*envFlags)(nil)
var _ domain.FeatureFlags = (*Static)(nil)
