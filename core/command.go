package core

import (
	"fmt"
	"sync"
)

// CommandHandler handles one command's payload. The handler decodes its own
// fixed-width arguments from the data pointer and sends its own response.
type CommandHandler func(data *[]byte) error

// Command is one registered instrument command. IDs are fixed by the wire
// protocol; Name only appears in errors and logs.
type Command struct {
	ID      uint8
	Name    string
	Handler CommandHandler
}

// CommandRegistry maps wire command IDs to handlers.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint8]*Command
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint8]*Command),
	}
}

// Register adds a command. Registration happens once at startup; a
// duplicate ID is a programming error and panics.
func (r *CommandRegistry) Register(id uint8, name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.commands[id]; ok {
		panic("command ID " + existing.Name + " already registered")
	}
	r.commands[id] = &Command{ID: id, Name: name, Handler: handler}
}

// Get retrieves a command by ID.
func (r *CommandRegistry) Get(id uint8) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// Count returns the number of registered commands.
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for id.
func (r *CommandRegistry) Dispatch(id uint8, data *[]byte) error {
	cmd, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("unknown command ID 0x%02x", id)
	}
	return cmd.Handler(data)
}
