package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Common test errors
var (
	ErrTest        = errors.New("test error")
	ErrConstructor = errors.New("constructor error")
	ErrDisposal    = errors.New("disposal error")
)

// TestService is a plain object without cleanup.
type TestService struct {
	ID        string
	CreatedAt time.Time
	Data      string
}

// NewTestService creates a new test service
func NewTestService() *TestService {
	return &TestService{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Data:      "test",
	}
}

// TestLogger is a test interface type
type TestLogger interface {
	Log(msg string)
	GetLogs() []string
}

// TestLoggerImpl implements TestLogger
type TestLoggerImpl struct {
	logs []string
	mu   sync.Mutex
}

func NewTestLogger() TestLogger {
	return &TestLoggerImpl{}
}

func (l *TestLoggerImpl) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, msg)
}

func (l *TestLoggerImpl) GetLogs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.logs...)
}

// DisposableService counts how often it is closed.
type DisposableService struct {
	ID       string
	CloseErr error

	closes atomic.Int32
	// OnClose, when set, runs inside Close.
	OnClose func()
}

// NewDisposableService creates a new disposable service
func NewDisposableService() *DisposableService {
	return &DisposableService{ID: uuid.NewString()}
}

func (d *DisposableService) Close() error {
	d.closes.Add(1)
	if d.OnClose != nil {
		d.OnClose()
	}
	return d.CloseErr
}

// Closes returns the number of Close calls.
func (d *DisposableService) Closes() int {
	return int(d.closes.Load())
}

// IsDisposed reports whether Close was called at least once.
func (d *DisposableService) IsDisposed() bool {
	return d.Closes() > 0
}

// ContextDisposableService implements the context-aware Close.
type ContextDisposableService struct {
	closes atomic.Int32
	ctx    context.Context
	mu     sync.Mutex
}

func (d *ContextDisposableService) Close(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
	d.closes.Add(1)
	return nil
}

// Closes returns the number of Close calls.
func (d *ContextDisposableService) Closes() int {
	return int(d.closes.Load())
}

// ClosedWith returns the context passed to the last Close call.
func (d *ContextDisposableService) ClosedWith() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

// CloseLog records the order in which objects are closed.
type CloseLog struct {
	mu    sync.Mutex
	names []string
}

func (l *CloseLog) Add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *CloseLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// LoggedDisposable appends its name to a CloseLog when closed.
type LoggedDisposable struct {
	Name string
	Log  *CloseLog
}

func (d *LoggedDisposable) Close() error {
	d.Log.Add(d.Name)
	return nil
}
