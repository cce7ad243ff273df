// Package drafts autosaves each user's in-progress session on disk,
// encrypted when a passphrase is configured.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/pkg/logger"
)

const keyFile = "master.key"

// Draft is a stored session and when it was saved.
type Draft struct {
	Session session.Session `json:"session"`
	SavedAt time.Time       `json:"savedAt"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Store keeps one draft per user.
type Store struct {
	storage *storage.Storage
	mu      sync.Map // uid -> *sync.Mutex
	now     func() time.Time
	logger  logger.Logger
}

// Open prepares dir. With a passphrase the master key in dir is loaded, or
// created on first use; without one drafts are written in the clear and an
// existing key file is an error.
func Open(ctx context.Context, dir, passphrase string, opts ...Option) (*Store, error) {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("drafts")
	}

	if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0o700); err != nil {
		return nil, fmt.Errorf("drafts dir: %w", err)
	}

	var masterKey crypto.MasterKey
	path := filepath.Join(dir, keyFile)
	if passphrase != "" {
		var err error
		masterKey, err = crypto.ReadMasterKey([]byte(passphrase), path)
		switch {
		case os.IsNotExist(err):
			s.logger.Info(ctx, "creating drafts master key", logger.String("dir", dir))
			if masterKey, err = crypto.CreateMasterKey(); err != nil {
				return nil, fmt.Errorf("create master key: %w", err)
			}
			if err = masterKey.Save([]byte(passphrase), path); err != nil {
				return nil, fmt.Errorf("save master key: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("read master key: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err == nil {
			return nil, ErrKeyWithoutPassphrase
		}
		s.logger.Warn(ctx, "drafts passphrase not set, drafts are stored unencrypted", logger.String("dir", dir))
	}

	s.storage = storage.New(dir, masterKey)
	return s, nil
}

func (s *Store) lock(uid string) func() {
	m, _ := s.mu.LoadOrStore(uid, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func fileName(uid string) string {
	return filepath.Join("sessions", url.PathEscape(uid)+".json")
}

// Save replaces uid's draft.
func (s *Store) Save(ctx context.Context, uid string, sess session.Session) (Draft, error) {
	if uid == "" {
		return Draft{}, ErrNoUser
	}
	defer s.lock(uid)()

	d := Draft{Session: sess, SavedAt: s.now()}
	if err := s.storage.SaveDataFile(fileName(uid), &d); err != nil {
		s.logger.Error(ctx, "draft save failed", logger.String("uid", uid), logger.Error(err))
		return Draft{}, fmt.Errorf("save draft: %w", err)
	}
	s.logger.Debug(ctx, "draft saved", logger.String("uid", uid), logger.Int("drills", len(sess.Drills)))
	return d, nil
}

// Load returns uid's draft with every drill normalized, or ErrNotFound.
func (s *Store) Load(ctx context.Context, uid string) (Draft, error) {
	if uid == "" {
		return Draft{}, ErrNoUser
	}
	defer s.lock(uid)()

	var d Draft
	if err := s.storage.ReadDataFile(fileName(uid), &d); err != nil {
		if errors.Is(err, os.ErrNotExist) || os.IsNotExist(err) {
			return Draft{}, ErrNotFound
		}
		return Draft{}, fmt.Errorf("read draft: %w", err)
	}
	if d.Deleted {
		return Draft{}, ErrNotFound
	}
	for i := range d.Session.Drills {
		d.Session.Drills[i] = drill.Canonical(d.Session.Drills[i])
	}
	if d.Session.Drills == nil {
		d.Session.Drills = []drill.Drill{}
	}
	return d, nil
}

// Delete discards uid's draft. The file is overwritten with a tombstone.
func (s *Store) Delete(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrNoUser
	}
	defer s.lock(uid)()

	if err := s.storage.SaveDataFile(fileName(uid), &Draft{SavedAt: s.now(), Deleted: true}); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	s.logger.Debug(ctx, "draft deleted", logger.String("uid", uid))
	return nil
}
