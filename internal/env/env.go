package env

import (
	"os"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env composes the environment handed to launched processes: the controller
// environment, then controller-wide overrides, then per-process overrides.
type Env struct {
	Var  Var // controller-wide overrides
	base Var // snapshot of the OS environment
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS snapshots the current process environment as the base.
func (e *Env) FromOS() {
	e.base = Parse(os.Environ())
}

// Set sets a controller-wide variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a controller-wide variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// WithSet returns a copy of e with K=V added.
func (e *Env) WithSet(k, v string) *Env {
	out := &Env{Var: make(Var, len(e.Var)+1), base: e.base}
	for kk, vv := range e.Var {
		out.Var[kk] = vv
	}
	out.Set(k, v)
	return out
}

// Merge returns the environment for one process as sorted "K=V" pairs.
// With clean set, the OS base and the controller-wide overrides are skipped
// and only perProc is used. ${VAR} references are expanded once against the
// composed map; unknown references are left as they are.
func (e *Env) Merge(perProc Var, clean bool) []string {
	m := make(Var)
	if !clean {
		if e.base == nil {
			e.FromOS()
		}
		for k, v := range e.base {
			m[k] = v
		}
		for k, v := range e.Var {
			if k != "" {
				m[k] = v
			}
		}
	}
	for k, v := range perProc {
		if k != "" {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

// Parse turns "K=V" pairs into a Var. Entries without '=' or with an empty
// key are skipped.
func Parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
}
