// Package session хранит состояние диалога пользователей в памяти процесса.
// После перезапуска все незавершенные диалоги и последние записи теряются.
package session

import (
	"slices"
	"sync"

	"github.com/ivanoskov/expense_bot/internal/model"
)

// Store потокобезопасное хранилище сессий
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*model.UserSession

	locksMu sync.Mutex
	locks   map[int64]*userLock
}

// userLock мьютекс пользователя со счетчиком ожидающих, чтобы удалять неиспользуемые
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*model.UserSession),
		locks:    make(map[int64]*userLock),
	}
}

// Get возвращает копию сессии; ok=false, если пользователь еще не писал
func (s *Store) Get(userID int64) (model.UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return model.UserSession{Pending: model.NoPendingAction}, false
	}
	return model.UserSession{
		LastRegisteredIDs: slices.Clone(sess.LastRegisteredIDs),
		Pending:           sess.Pending,
	}, true
}

// SetPendingAction меняет незавершенное действие пользователя
func (s *Store) SetPendingAction(userID int64, action model.PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(userID).Pending = action
}

// SetLastRegistered целиком заменяет список последних записей; nil очищает его
func (s *Store) SetLastRegistered(userID int64, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session(userID).LastRegisteredIDs = slices.Clone(ids)
}

// session создает сессию при первом обращении; вызывается под s.mu
func (s *Store) session(userID int64) *model.UserSession {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &model.UserSession{Pending: model.NoPendingAction}
		s.sessions[userID] = sess
	}
	return sess
}

// Lock сериализует обработку сообщений одного пользователя.
// Сообщения разных пользователей обрабатываются параллельно.
func (s *Store) Lock(userID int64) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, userID)
			}
			s.locksMu.Unlock()
		})
	}
}

// Len количество пользователей с сессией
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
