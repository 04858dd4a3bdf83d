package engine

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"lifeswap/internal/config"
	"lifeswap/internal/content"
	"lifeswap/internal/domain"
	"lifeswap/internal/events"
	"lifeswap/internal/logger"
	"lifeswap/internal/repo"
	"lifeswap/internal/scoring"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Content  *content.Store
	Events   events.Writer
	Config   *config.Config
	Policies *scoring.Registry
	Log      *logger.Logger
	Now      func() time.Time

	locks *keyedMutex
}

func New(db *sql.DB, cfg *config.Config, log *logger.Logger) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	r := repo.Repo{DB: db}
	store, err := content.NewStore(r, cfg.Cache.Graphs)
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:       db,
		Repo:     r,
		Content:  store,
		Events:   events.Writer{},
		Config:   cfg,
		Policies: scoring.Builtin(cfg.Scoring.TimeBonus.BonusPoints),
		Log:      log,
		Now:      time.Now,
		locks:    newKeyedMutex(),
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) log() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

func (e Engine) lock(key string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.Lock(key)
}

func (e Engine) policy(name string) (scoring.Policy, error) {
	if name == "" && e.Config != nil {
		name = e.Config.Engine.DefaultPolicy
	}
	reg := e.Policies
	if reg == nil {
		reg = scoring.Builtin(config.DefaultTimeBonus)
	}
	return reg.Lookup(name)
}

func (e Engine) maxSteps(exp domain.Experience) int {
	if exp.MaxSteps > 0 {
		return exp.MaxSteps
	}
	if e.Config != nil && e.Config.Engine.MaxSteps > 0 {
		return e.Config.Engine.MaxSteps
	}
	return config.DefaultMaxSteps
}

// invalidState records a data-integrity defect and returns the typed error.
func (e Engine) invalidState(ledgerID, reason string) error {
	e.log().Error("ledger in invalid state", "ledger_id", ledgerID, "reason", reason)
	return fmt.Errorf("ledger %s: %s: %w", ledgerID, reason, domain.ErrInvalidState)
}

// keyedMutex serializes writers per key while letting different keys proceed.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
