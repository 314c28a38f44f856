package depman

import "context"

// Disposable is implemented by objects that need cleanup when the registry
// releases them, either on overwrite or on teardown. io.Closer satisfies it.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	Close() error
}

// DisposableWithContext allows disposal with context for graceful shutdown.
// It takes precedence over Disposable when an object implements both.
type DisposableWithContext interface {
	Close(ctx context.Context) error
}

// dispose releases a single object. Objects without a Close method are left
// to the garbage collector.
func dispose(ctx context.Context, v any) error {
	switch d := v.(type) {
	case DisposableWithContext:
		return d.Close(ctx)
	case Disposable:
		return d.Close()
	default:
		return nil
	}
}
