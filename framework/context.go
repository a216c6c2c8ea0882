// Package framework hosts the foundational data structures every agent, tool
// and orchestration primitive depends on: chat messages and completions, the
// tool registry, scoped memory, telemetry and the small graph runtime that
// drives multi-stage loops.
//
// Context is the blackboard shared by the nodes of one graph run. Nodes read
// what earlier nodes wrote (the current step, the pending action, the latest
// observation) and leave their own output for the next node. Keys are plain
// strings namespaced by convention, e.g. "react.step" or "run.id".
package framework

import (
	"fmt"
	"sort"
	"sync"
)

// Context is the in-memory blackboard for a single graph execution.
type Context struct {
	mu    sync.RWMutex
	state map[string]interface{}
}

// NewContext builds an empty execution context.
func NewContext() *Context {
	return &Context{state: make(map[string]interface{})}
}

// Set stores a value.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
}

// Get retrieves a value.
func (c *Context) Get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state[key]
	return v, ok
}

// GetString returns the value formatted as a string, "" when absent.
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// GetInt returns an int value, 0 when absent or not an int.
func (c *Context) GetInt(key string) int {
	v, _ := c.Get(key)
	n, _ := v.(int)
	return n
}

// GetBool returns a bool value, false when absent.
func (c *Context) GetBool(key string) bool {
	v, _ := c.Get(key)
	b, _ := v.(bool)
	return b
}

// Keys lists stored keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.state))
	for k := range c.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
