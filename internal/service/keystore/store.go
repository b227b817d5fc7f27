package keystore

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/keyserver-api/internal/domain/entity"
	apperrors "github.com/yourusername/keyserver-api/internal/pkg/errors"
)

// Store хранит пул ключей и их жизненный цикл.
//
// Все операции выполняются целиком под одним мьютексом: чтение производных
// множеств и последующее изменение записи никогда не разделяются
// освобождением блокировки. Store не выполняет ввода-вывода и не пишет логи.
type Store struct {
	mu sync.Mutex

	live         map[string]*entry
	deleted      map[string]struct{}
	deletedOrder []string
	seq          uint64

	// pending копит переходы, применённые попутно (листинги, Serve, точечные
	// операции), до ближайшего TakeTransitions или RefreshAll
	pending RefreshReport

	now    func() time.Time
	newKey func() string
}

// NewStore создает пустой пул ключей
func NewStore(opts ...Option) *Store {
	s := &Store{
		live:    make(map[string]*entry),
		deleted: make(map[string]struct{}),
		now:     time.Now,
		newKey:  RandomKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate выпускает n новых незаблокированных ключей (DefaultBatchSize при n <= 0).
// Кандидат, совпавший с живым или удалённым ключом, отбрасывается и
// генерируется заново: удалённые значения никогда не выдаются повторно.
func (s *Store) Generate(n int) []string {
	if n <= 0 {
		n = DefaultBatchSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, n)
	for len(keys) < n {
		candidate := s.newKey()
		if s.takenLocked(candidate) {
			continue
		}
		s.seq++
		s.live[candidate] = &entry{rec: entity.NewKeyRecord(candidate, now), seq: s.seq}
		keys = append(keys, candidate)
	}
	return keys
}

// BlockedKeys возвращает заблокированные ключи в порядке выпуска.
//
// ВНИМАНИЕ: перед чтением применяется правило переходов, поэтому вызов может
// разблокировать или удалить ключи. Это ожидаемое поведение: листинги
// реализуют отложенные истечения, не делайте их "чистыми".
func (s *Store) BlockedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked(s.now())
	return s.collectLocked(entity.KeyStatusBlocked)
}

// UnblockedKeys возвращает живые незаблокированные ключи в порядке выпуска.
// Как и BlockedKeys, сначала применяет правило переходов.
func (s *Store) UnblockedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked(s.now())
	return s.collectLocked(entity.KeyStatusUnblocked)
}

// DeletedKeys возвращает удалённые ключи в порядке удаления.
// Правило переходов применяется заранее, чтобы просроченные ключи попали в список.
func (s *Store) DeletedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked(s.now())
	return append(make([]string, 0, len(s.deletedOrder)), s.deletedOrder...)
}

// Snapshot возвращает все три списка, снятые в одной критической секции
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.refreshLocked(now)
	return Snapshot{
		Blocked:   s.collectLocked(entity.KeyStatusBlocked),
		Unblocked: s.collectLocked(entity.KeyStatusUnblocked),
		Deleted:   append(make([]string, 0, len(s.deletedOrder)), s.deletedOrder...),
		TakenAt:   now,
	}
}

// Serve выбирает случайный незаблокированный ключ и блокирует его.
// Выбор и блокировка выполняются без освобождения мьютекса, поэтому
// два конкурентных вызова никогда не получат один и тот же ключ.
func (s *Store) Serve() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.refreshLocked(now)

	free := 0
	for _, e := range s.live {
		if !e.rec.IsBlocked() {
			free++
		}
	}
	if free == 0 {
		return "", apperrors.ErrNoKeyAvailable
	}

	// k-й свободный ключ в порядке обхода карты; сортировка для выбора не нужна
	k := rand.IntN(free)
	for key, e := range s.live {
		if e.rec.IsBlocked() {
			continue
		}
		if k > 0 {
			k--
			continue
		}
		e.rec.Status = entity.KeyStatusBlocked
		e.rec.Touch(now)
		return key, nil
	}
	return "", apperrors.ErrNoKeyAvailable
}

// Block блокирует ключ и обновляет LastTouched.
// Возвращает true, если ключ уже был заблокирован.
func (s *Store) Block(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.liveLocked(key, now)
	if !ok {
		return false, apperrors.ErrInvalidKey
	}

	already := e.rec.IsBlocked()
	e.rec.Status = entity.KeyStatusBlocked
	e.rec.Touch(now)
	return already, nil
}

// Unblock возвращает ключ в пул. LastTouched не меняется.
// Возвращает true, если ключ уже был разблокирован.
func (s *Store) Unblock(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(key, s.now())
	if !ok {
		return false, apperrors.ErrInvalidKey
	}

	already := !e.rec.IsBlocked()
	e.rec.Status = entity.KeyStatusUnblocked
	return already, nil
}

// Delete удаляет ключ навсегда. Повторное удаление возвращает ErrInvalidKey.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(key, s.now()); !ok {
		return apperrors.ErrInvalidKey
	}
	s.deleteLocked(key)
	return nil
}

// Ping обновляет LastTouched, не меняя статус ключа
func (s *Store) Ping(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.liveLocked(key, now)
	if !ok {
		return apperrors.ErrInvalidKey
	}
	e.rec.Touch(now)
	return nil
}

// Lookup возвращает копию записи живого ключа
func (s *Store) Lookup(key string) (entity.KeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(key, s.now())
	if !ok {
		return entity.KeyRecord{}, false
	}
	return *e.rec, true
}

// RefreshAll применяет правило переходов ко всем живым ключам и возвращает
// все переходы, накопленные с прошлого забора, включая попутные.
// Вызывается периодическим драйвером; безопасен при конкурентных вызовах.
func (s *Store) RefreshAll() RefreshReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked(s.now())
	return s.takeLocked()
}

// TakeTransitions забирает переходы, применённые попутно с прошлого забора.
// Каждый переход возвращается ровно один раз.
func (s *Store) TakeTransitions() RefreshReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.takeLocked()
}

// Counts возвращает размеры множеств. Правило переходов НЕ применяется:
// метод предназначен для метрик, которые не должны менять состояние пула.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := Counts{Live: len(s.live), Deleted: len(s.deletedOrder)}
	for _, e := range s.live {
		if e.rec.IsBlocked() {
			c.Blocked++
		}
	}
	c.Unblocked = c.Live - c.Blocked
	return c
}

// takenLocked проверяет, использовалось ли значение когда-либо
func (s *Store) takenLocked(value string) bool {
	if _, ok := s.live[value]; ok {
		return true
	}
	_, ok := s.deleted[value]
	return ok
}

// liveLocked ищет живой ключ и применяет к нему правило переходов.
// Ключ, срок жизни которого истёк, удаляется и считается отсутствующим.
func (s *Store) liveLocked(key string, now time.Time) (*entry, bool) {
	e, ok := s.live[key]
	if !ok {
		return nil, false
	}
	switch Evaluate(now, *e.rec) {
	case TransitionExpire:
		s.deleteLocked(key)
		s.pending.Expired = append(s.pending.Expired, key)
		return nil, false
	case TransitionUnblock:
		e.rec.Status = entity.KeyStatusUnblocked
		s.pending.Unblocked = append(s.pending.Unblocked, key)
	}
	return e, true
}

// refreshLocked применяет правило ко всем записям и дописывает переходы в pending.
// Истёкшие ключи сначала собираются, а удаляются после обхода карты.
func (s *Store) refreshLocked(now time.Time) {
	var report RefreshReport
	for value, e := range s.live {
		switch Evaluate(now, *e.rec) {
		case TransitionExpire:
			report.Expired = append(report.Expired, value)
		case TransitionUnblock:
			e.rec.Status = entity.KeyStatusUnblocked
			report.Unblocked = append(report.Unblocked, value)
		}
	}

	// порядок выпуска, как в листингах; удаляем тоже в нём
	s.sortBySeqLocked(report.Expired)
	s.sortBySeqLocked(report.Unblocked)
	for _, value := range report.Expired {
		s.deleteLocked(value)
	}
	s.pending.Unblocked = append(s.pending.Unblocked, report.Unblocked...)
	s.pending.Expired = append(s.pending.Expired, report.Expired...)
}

// sortBySeqLocked упорядочивает живые ключи по номеру выпуска
func (s *Store) sortBySeqLocked(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		return s.live[keys[i]].seq < s.live[keys[j]].seq
	})
}

func (s *Store) takeLocked() RefreshReport {
	report := s.pending
	s.pending = RefreshReport{}
	return report
}

func (s *Store) deleteLocked(key string) {
	delete(s.live, key)
	s.deleted[key] = struct{}{}
	s.deletedOrder = append(s.deletedOrder, key)
}

// collectLocked возвращает ключи с указанным статусом в порядке выпуска
func (s *Store) collectLocked(status entity.KeyStatus) []string {
	matched := make([]*entry, 0, len(s.live))
	for _, e := range s.live {
		if e.rec.Status == status {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	keys := make([]string, len(matched))
	for i, e := range matched {
		keys[i] = e.rec.Value
	}
	return keys
}
