// Package registry holds the extension tables an event sheet runs against:
// object expressions per object type, extension and built-in functions for
// VAL(...), and the conditions and actions referenced by instructions.
// Each entry carries InstructionDef metadata used by the sheet validator,
// the CLI and documentation output.
package registry

import (
	"fmt"
	"sync"

	"github.com/petal-labs/eventsheet/core"
	"github.com/petal-labs/eventsheet/events"
	"github.com/petal-labs/eventsheet/expression"
)

// DefKind tells what an InstructionDef describes.
type DefKind string

const (
	KindCondition        DefKind = "condition"
	KindAction           DefKind = "action"
	KindObjectExpression DefKind = "object_expression"
	KindExtension        DefKind = "extension"
	KindBuiltin          DefKind = "builtin"
)

// InstructionDef describes a registered entry.
type InstructionDef struct {
	Type        string   `json:"type"`
	Kind        DefKind  `json:"kind"`
	ObjectType  string   `json:"object_type,omitempty"` // object expressions only
	Category    string   `json:"category"`              // "variables", "objects", "timers", "scene", "math"
	Description string   `json:"description"`
	Params      []string `json:"params,omitempty"`
}

func (d InstructionDef) key() string {
	if d.Kind == KindObjectExpression {
		return string(d.Kind) + ":" + d.ObjectType + "." + d.Type
	}
	return string(d.Kind) + ":" + d.Type
}

// Registry maps instruction types and function names to implementations.
// It is safe for concurrent use; registration normally happens once before
// any scene runs.
type Registry struct {
	mu          sync.RWMutex
	objectFuncs map[string]map[string]expression.ObjectFunc // object type -> name
	extensions  map[string]expression.Func
	builtins    map[string]expression.Func
	conditions  map[string]events.Condition
	actions     map[string]events.Action
	defs        map[string]InstructionDef
	order       []string // def keys in registration order
}

var (
	_ expression.Functions = (*Registry)(nil)
	_ events.Instructions  = (*Registry)(nil)
)

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		objectFuncs: make(map[string]map[string]expression.ObjectFunc),
		extensions:  make(map[string]expression.Func),
		builtins:    make(map[string]expression.Func),
		conditions:  make(map[string]events.Condition),
		actions:     make(map[string]events.Action),
		defs:        make(map[string]InstructionDef),
	}
}

// NewWithBuiltins returns a registry with the standard conditions, actions
// and expressions registered.
func NewWithBuiltins() *Registry {
	r := New()
	registerBuiltins(r)
	return r
}

func (r *Registry) addDef(def InstructionDef) {
	k := def.key()
	if _, exists := r.defs[k]; !exists {
		r.order = append(r.order, k)
	}
	r.defs[k] = def
}

// RegisterCondition adds or replaces a condition.
func (r *Registry) RegisterCondition(def InstructionDef, c events.Condition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.Kind = KindCondition
	r.conditions[def.Type] = c
	r.addDef(def)
}

// RegisterAction adds or replaces an action.
func (r *Registry) RegisterAction(def InstructionDef, a events.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.Kind = KindAction
	r.actions[def.Type] = a
	r.addDef(def)
}

// RegisterObjectFunction adds an expression usable as OBJ(name[Type]...) on
// objects of def.ObjectType. An empty ObjectType means core.BaseType.
func (r *Registry) RegisterObjectFunction(def InstructionDef, fn expression.ObjectFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.Kind = KindObjectExpression
	if def.ObjectType == "" {
		def.ObjectType = core.BaseType
	}
	table, ok := r.objectFuncs[def.ObjectType]
	if !ok {
		table = make(map[string]expression.ObjectFunc)
		r.objectFuncs[def.ObjectType] = table
	}
	table[def.Type] = fn
	r.addDef(def)
}

// RegisterExtension adds an extension function, looked up by VAL before
// built-in functions.
func (r *Registry) RegisterExtension(def InstructionDef, fn expression.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.Kind = KindExtension
	r.extensions[def.Type] = fn
	r.addDef(def)
}

// RegisterBuiltin adds a built-in VAL function.
func (r *Registry) RegisterBuiltin(def InstructionDef, fn expression.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.Kind = KindBuiltin
	r.builtins[def.Type] = fn
	r.addDef(def)
}

// ObjectFunction looks name up in the objectType table, then in the Base
// table.
func (r *Registry) ObjectFunction(objectType, name string) (expression.ObjectFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.objectFuncs[objectType][name]; ok {
		return fn, true
	}
	fn, ok := r.objectFuncs[core.BaseType][name]
	return fn, ok
}

// ExtensionFunction implements expression.Functions.
func (r *Registry) ExtensionFunction(name string) (expression.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.extensions[name]
	return fn, ok
}

// BuiltinFunction implements expression.Functions.
func (r *Registry) BuiltinFunction(name string) (expression.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.builtins[name]
	return fn, ok
}

// Condition implements events.Instructions.
func (r *Registry) Condition(typ string) (events.Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conditions[typ]
	return c, ok
}

// Action implements events.Instructions.
func (r *Registry) Action(typ string) (events.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[typ]
	return a, ok
}

// HasCondition reports whether typ is a registered condition.
func (r *Registry) HasCondition(typ string) bool {
	_, ok := r.Condition(typ)
	return ok
}

// HasAction reports whether typ is a registered action.
func (r *Registry) HasAction(typ string) bool {
	_, ok := r.Action(typ)
	return ok
}

// Get returns the metadata of a condition, action, extension or builtin.
// Object expressions are looked up with GetObjectFunction.
func (r *Registry) Get(kind DefKind, typ string) (InstructionDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[InstructionDef{Kind: kind, Type: typ}.key()]
	return def, ok
}

// GetObjectFunction returns the metadata of an object expression.
func (r *Registry) GetObjectFunction(objectType, name string) (InstructionDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[InstructionDef{Kind: KindObjectExpression, ObjectType: objectType, Type: name}.key()]
	return def, ok
}

// All returns every definition in registration order.
func (r *Registry) All() []InstructionDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]InstructionDef, 0, len(r.order))
	for _, k := range r.order {
		result = append(result, r.defs[k])
	}
	return result
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Describe renders a definition as a one-line signature, e.g.
// "condition VarScene(name, value, sign)".
func (d InstructionDef) Describe() string {
	name := d.Type
	if d.Kind == KindObjectExpression {
		name = d.ObjectType + "." + d.Type
	}
	params := ""
	for i, p := range d.Params {
		if i > 0 {
			params += ", "
		}
		params += p
	}
	return fmt.Sprintf("%s %s(%s)", d.Kind, name, params)
}
