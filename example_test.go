package depman_test

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/junioryono/depman"
)

// Example service types
type Logger struct {
	prefix string
}

func NewLogger() *Logger {
	return &Logger{prefix: "[LOG] "}
}

func (l *Logger) Log(msg string) {
	fmt.Println(l.prefix + msg)
}

type Database struct {
	name string
}

func NewDatabase() *Database {
	return &Database{name: "main"}
}

func (d *Database) Close() error {
	fmt.Println("database closed")
	return nil
}

type RequestState struct {
	user string
}

// Example demonstrates lazy construction and typed lookup.
func Example() {
	types := depman.NewTypeRegistry()
	depman.Register(types, NewLogger)

	registry := depman.New(depman.WithTypeRegistry(types))
	defer registry.Close()

	ctx := context.Background()

	// Constructed on first use
	logger := depman.Get[*Logger](ctx, registry, "logger")
	logger.Log("hello")

	// Same instance afterwards
	fmt.Println(logger == depman.Get[*Logger](ctx, registry, "logger"))
	// Output:
	// [LOG] hello
	// true
}

// ExampleRegistry_StoreObject shows that the registry owns what it stores.
func ExampleRegistry_StoreObject() {
	registry := depman.New()
	ctx := context.Background()

	global := depman.InPolicy(depman.ApplicationGlobal)
	if err := depman.Store(ctx, registry, "db", NewDatabase(), global); err != nil {
		log.Fatal(err)
	}

	// Overwriting releases the previous object
	if err := depman.Store(ctx, registry, "db", NewDatabase(), global); err != nil {
		log.Fatal(err)
	}

	fmt.Println("closing registry")
	if err := registry.Close(); err != nil {
		log.Fatal(err)
	}
	// Output:
	// database closed
	// closing registry
	// database closed
}

// ExampleRegistry_Attach demonstrates per-request thread partitions.
func ExampleRegistry_Attach() {
	registry := depman.New()
	defer registry.Close()

	handle := func(user string) {
		ctx, thread := registry.Attach(context.Background())
		defer thread.Close()

		state := depman.Get[*RequestState](ctx, registry, "state")
		if state == nil {
			state = &RequestState{user: user}
			_ = depman.Store(ctx, registry, "state", state)
		}
		fmt.Println(depman.Get[*RequestState](ctx, registry, "state").user)
	}

	handle("alice")
	handle("bob")
	// Output:
	// alice
	// bob
}

// ExampleRegistry_Attach_http shows attaching a thread per HTTP request.
func ExampleRegistry_Attach_http() {
	registry := depman.New()
	defer registry.Close()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, thread := registry.Attach(r.Context())
		defer thread.Close()

		_ = depman.Store(ctx, registry, "state", &RequestState{user: r.Header.Get("X-User")})
		fmt.Fprintln(w, depman.Get[*RequestState](ctx, registry, "state").user)
	})

	_ = handler
}

// ExampleDependency demonstrates the process-wide registry.
func ExampleDependency() {
	registry := depman.New()
	depman.Register(registry.Types(), NewLogger)

	prev := depman.SetDefault(registry)
	defer func() {
		depman.SetDefault(prev)
		registry.Close()
	}()

	ctx := context.Background()
	depman.Dependency[*Logger](ctx).Log("from the default registry")
	fmt.Println(depman.NameOf[*Logger]())
	// Output:
	// [LOG] from the default registry
	// depman_test.Logger
}

// ExampleParseThreadingPolicy parses a policy from configuration.
func ExampleParseThreadingPolicy() {
	policy, err := depman.ParseThreadingPolicy("application-global")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(policy)
	// Output: ApplicationGlobal
}
