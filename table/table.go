// Package table implements the table stepper: resolving a single table
// application into its hit and miss successor branches, specialized to
// match-action semantics that the expression and statement steppers have
// no equivalent for.
package table

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
	"github.com/pplgen/testgen/trace"
)

// Rule is the test object recorded for a synthesized control-plane table
// entry: the match zombies bound to each key, the action it calls, and the
// zombie arguments bound to that action's parameters. The test serializer
// (outside this core) turns these into a concrete P4Runtime table_add.
type Rule struct {
	Table    string
	Matches  map[string][]ir.Expr
	Priority int
	Action   string
	Args     []ir.Expr
	TTL      int
}

// TestObjectCategory implements state.TestObject.
func (Rule) TestObjectCategory() string { return "table_rule" }

// Profile is the test object recorded for one member of an action-profile
// (or, per the accepted selector-falls-through-to-profile simplification,
// action-selector) backed table: the action it calls, indexed by its
// position rather than by name, mirroring how the control plane configures
// a profile member.
type Profile struct {
	Name   string
	Index  int
	Action string
	Args   []ir.Expr
}

// TestObjectCategory implements state.TestObject.
func (Profile) TestObjectCategory() string { return "action_profile" }

const defaultTTL = 0

// Stepper resolves table applications into hit/miss branches. Its Step
// method is assigned to stepper.Stepper.TableStep by whichever package
// wires the two together (target), keeping table and stepper from needing
// to import each other.
type Stepper struct {
	Decls *ir.DeclTable

	// Log receives warnings about approximations this stepper takes
	// (all-tainted-key defaulting, selector-as-profile fallback). Falls
	// back to the standard logger when nil.
	Log *logrus.Entry
}

func (s *Stepper) log() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

const propZombieSeq = "table.zombie_seq"

// zombie mints a fresh, state-locally-unique free variable standing for a
// control-plane-chosen constant, suffixing label with a per-state sequence
// number so repeated applications of the same table (or the same key,
// across actions) never collide within one state's lineage.
func (s *Stepper) zombie(st *state.ExecutionState, typ ir.Type, label string) ir.Expr {
	n := st.Properties.GetInt(propZombieSeq)
	st.Properties.Set(propZombieSeq, n+1)
	return ir.NewFreeVariable(fmt.Sprintf("%s$%d", label, n), typ)
}

func andExpr(a, b ir.Expr) ir.Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return ir.NewBinaryExpr(ir.LAND, a, b)
}

func propTableHit(name string) string     { return "table." + name + ".hit" }
func propTableReached(name string) string { return "table." + name + ".reached" }

// allKeysTainted reports whether every key that actually participates in
// matching (optional and selector keys are no-ops for this purpose) is
// taint-containing, in which case the whole table must default rather than
// synthesize a hit condition no solver query could ever resolve usefully.
func allKeysTainted(keys []ir.TableKey) bool {
	matched := false
	for _, k := range keys {
		if k.Kind == ir.MatchOptional || k.Kind == ir.MatchSelector {
			continue
		}
		matched = true
		if !ir.IsTainted(k.Field) {
			return false
		}
	}
	return matched
}

// Step resolves one table application, matching stepper.TableStepFunc. then
// is the continuation to resume once the chosen action (hit or default)
// finishes.
func (s *Stepper) Step(st *state.ExecutionState, tbl *ir.TableDecl, then ir.Stmt) ([]state.Branch, error) {
	switch {
	case len(tbl.ConstEntries) > 0:
		return s.stepConstEntries(st, tbl, then)
	case tbl.HasActionProfile || tbl.HasSelector:
		return s.stepActionProfile(st, tbl, then)
	default:
		return s.stepControlPlane(st, tbl, then)
	}
}

// applyAction binds actionID's formal parameters to args (nil for the
// default action, which takes none in this core) and pushes its body ahead
// of then, the same push order stepper.stepApply uses for a direct apply.
func (s *Stepper) applyAction(st *state.ExecutionState, actionID ir.DeclID, args []ir.Expr, then ir.Stmt) (*ir.Decl, error) {
	decl, err := s.Decls.Get(actionID)
	if err != nil {
		return nil, fmt.Errorf("table: action %d: %w", actionID, err)
	}
	if decl.Kind != ir.DeclAction {
		return nil, fmt.Errorf("table: declaration %q is not an action", decl.Name)
	}
	for i, p := range decl.Action.Params {
		if i < len(args) {
			st.Environment = st.Environment.Set(ir.Ref(p.Name), args[i])
		}
	}
	if then != nil {
		st.PushCommand(state.StmtCommand{Stmt: then})
	}
	st.PushCommand(state.StmtCommand{Stmt: &ir.BlockStatement{Stmts: decl.Action.Body}})
	return &decl, nil
}

// keyCondition computes one key's match condition according to its match
// kind, minting the zombies (mask/value/range-bound/prefix-length) that
// condition is stated over. A nil condition means the key is optional or a
// selector key and contributes nothing to the hit condition.
func (s *Stepper) keyCondition(st *state.ExecutionState, label string, key ir.TableKey) (cond ir.Expr, zombies []ir.Expr) {
	switch key.Kind {
	case ir.MatchOptional, ir.MatchSelector:
		return nil, nil
	}

	typ := key.Field.Type()
	switch key.Kind {
	case ir.MatchExact:
		z := s.zombie(st, typ, label)
		return ir.NewBinaryExpr(ir.EQ, key.Field, z), []ir.Expr{z}
	case ir.MatchTernary:
		mask := s.zombie(st, typ, label+"_mask")
		value := s.zombie(st, typ, label+"_value")
		masked := ir.NewBinaryExpr(ir.AND, key.Field, mask)
		return ir.NewBinaryExpr(ir.EQ, masked, value), []ir.Expr{mask, value}
	case ir.MatchLPM:
		// The well-formedness of the mask (a run of ones followed by a run
		// of zeros) is not constrained here; only the masked-equality and
		// prefix-length ordering are. A target that needs well-formed LPM
		// masks synthesizes prefix-mask directly from prefixLen instead of
		// minting it as an independent zombie.
		width := ir.TypeWidth(typ)
		mask := s.zombie(st, typ, label+"_mask")
		value := s.zombie(st, typ, label+"_value")
		prefixLen := s.zombie(st, ir.BitsType{Width: width}, label+"_plen")
		masked := ir.NewBinaryExpr(ir.AND, key.Field, mask)
		cond := ir.NewBinaryExpr(ir.LAND,
			ir.NewBinaryExpr(ir.EQ, masked, value),
			ir.NewBinaryExpr(ir.ULE, prefixLen, ir.NewConstant(uint64(width), width)))
		return cond, []ir.Expr{mask, value, prefixLen}
	case ir.MatchRange:
		lo := s.zombie(st, typ, label+"_min")
		hi := s.zombie(st, typ, label+"_max")
		cond := ir.NewBinaryExpr(ir.LAND,
			ir.NewBinaryExpr(ir.ULT, lo, hi),
			ir.NewBinaryExpr(ir.LAND,
				ir.NewBinaryExpr(ir.ULE, lo, key.Field),
				ir.NewBinaryExpr(ir.ULE, key.Field, hi)))
		return cond, []ir.Expr{lo, hi}
	default:
		return nil, nil
	}
}

// stepControlPlane implements the per-action loop for an ordinary
// (non-constant, non-profile) table: one clone per action, fresh
// match zombies and fresh action-argument zombies per clone, a recorded
// Rule, and a miss branch guarded by every hit condition's negation.
func (s *Stepper) stepControlPlane(st *state.ExecutionState, tbl *ir.TableDecl, then ir.Stmt) ([]state.Branch, error) {
	if allKeysTainted(tbl.Keys) {
		s.log().WithField("table", tbl.Name).
			Warn("table: every match key is tainted, defaulting without synthesizing a hit condition")
		st.LogEvent(trace.TableEvent(tbl.Name, false))
		st.Properties.Set(propTableReached(tbl.Name), true)
		if _, err := s.applyAction(st, tbl.DefaultAction, nil, then); err != nil {
			return nil, err
		}
		return []state.Branch{{Next: st}}, nil
	}

	var branches []state.Branch
	var missNegation ir.Expr
	for _, actionID := range tbl.Actions {
		decl, err := s.Decls.Get(actionID)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", tbl.Name, err)
		}
		if decl.Kind != ir.DeclAction {
			return nil, fmt.Errorf("table %q: action list entry %q is not an action", tbl.Name, decl.Name)
		}

		hitSt := st.Clone()
		var hitCond ir.Expr
		matches := make(map[string][]ir.Expr)
		for i, key := range tbl.Keys {
			label := fmt.Sprintf("%s_key%d", tbl.Name, i)
			cond, zombies := s.keyCondition(hitSt, label, key)
			if cond == nil {
				continue
			}
			hitCond = andExpr(hitCond, cond)
			matches[label] = zombies
		}
		if hitCond == nil {
			hitCond = ir.NewBool(true)
		}

		args := make([]ir.Expr, len(decl.Action.Params))
		for i, p := range decl.Action.Params {
			args[i] = s.zombie(hitSt, p.Type, fmt.Sprintf("%s_%s_param%d", tbl.Name, decl.Name, i))
		}
		st.Properties.Set(propZombieSeq, hitSt.Properties.GetInt(propZombieSeq))

		hitSt.Properties.Set(propTableHit(tbl.Name), true)
		hitSt.Properties.Set(propTableReached(tbl.Name), true)
		hitSt.LogEvent(trace.TableEvent(tbl.Name, true))
		hitSt.TestObjects.Set(
			state.TestObjectKey{Category: "table_rule", Name: fmt.Sprintf("%s#%s", tbl.Name, decl.Name)},
			Rule{Table: tbl.Name, Matches: matches, Priority: len(branches), Action: decl.Name, Args: args, TTL: defaultTTL},
		)
		if _, err := s.applyAction(hitSt, actionID, args, then); err != nil {
			return nil, err
		}
		branches = append(branches, state.Branch{Guard: hitCond, Next: hitSt})
		missNegation = andExpr(missNegation, ir.NewUnaryExpr(ir.LNOT, hitCond))
	}

	missSt := st.Clone()
	missSt.Properties.Set(propTableReached(tbl.Name), true)
	missSt.LogEvent(trace.TableEvent(tbl.Name, false))
	if _, err := s.applyAction(missSt, tbl.DefaultAction, nil, then); err != nil {
		return nil, err
	}
	branches = append(branches, state.Branch{Guard: missNegation, Next: missSt})
	return branches, nil
}

// stepConstEntries implements the constant-entry case: entries are matched
// in declaration order, which is their implicit priority, against their
// declared literal values rather than synthesized zombies.
func (s *Stepper) stepConstEntries(st *state.ExecutionState, tbl *ir.TableDecl, then ir.Stmt) ([]state.Branch, error) {
	var branches []state.Branch
	var priorNegation ir.Expr
	for i, entry := range tbl.ConstEntries {
		decl, err := s.Decls.Get(entry.Action)
		if err != nil {
			return nil, fmt.Errorf("table %q: const entry %d: %w", tbl.Name, i, err)
		}

		var entryCond ir.Expr
		for j, key := range tbl.Keys {
			if key.Kind == ir.MatchOptional || key.Kind == ir.MatchSelector {
				continue
			}
			if j >= len(entry.Values) {
				return nil, fmt.Errorf("table %q: const entry %d: missing value for key %d", tbl.Name, i, j)
			}
			entryCond = andExpr(entryCond, ir.NewBinaryExpr(ir.EQ, key.Field, entry.Values[j]))
		}
		if entryCond == nil {
			entryCond = ir.NewBool(true)
		}
		guard := andExpr(entryCond, priorNegation)

		hitSt := st.Clone()
		hitSt.Properties.Set(propTableHit(tbl.Name), true)
		hitSt.Properties.Set(propTableReached(tbl.Name), true)
		hitSt.LogEvent(trace.TableEvent(tbl.Name, true))
		hitSt.TestObjects.Set(
			state.TestObjectKey{Category: "table_rule", Name: fmt.Sprintf("%s#const%d", tbl.Name, i)},
			Rule{Table: tbl.Name, Priority: i, Action: decl.Name, Args: entry.Args, TTL: defaultTTL},
		)
		if _, err := s.applyAction(hitSt, entry.Action, entry.Args, then); err != nil {
			return nil, err
		}
		branches = append(branches, state.Branch{Guard: guard, Next: hitSt})

		priorNegation = andExpr(priorNegation, ir.NewUnaryExpr(ir.LNOT, entryCond))
	}

	missSt := st.Clone()
	missSt.Properties.Set(propTableReached(tbl.Name), true)
	missSt.LogEvent(trace.TableEvent(tbl.Name, false))
	if _, err := s.applyAction(missSt, tbl.DefaultAction, nil, then); err != nil {
		return nil, err
	}
	branches = append(branches, state.Branch{Guard: priorNegation, Next: missSt})
	return branches, nil
}

// stepActionProfile handles a table backed by an action profile or an
// action selector. A selector is treated exactly like a profile: the
// control plane's real hash-over-the-selector-key-list group-membership
// behavior is not modeled, only its simpler profile fallback of
// enumerating member actions directly.
//
// TODO: implement true selector semantics — hash over tbl.SelectorKeys into
// a group, rather than enumerating member actions directly like a profile.
func (s *Stepper) stepActionProfile(st *state.ExecutionState, tbl *ir.TableDecl, then ir.Stmt) ([]state.Branch, error) {
	if tbl.HasSelector {
		s.log().WithField("table", tbl.Name).
			Warn("table: action selector approximated as a profile, group-membership hashing is not modeled")
	}
	var branches []state.Branch
	var missNegation ir.Expr
	for idx, actionID := range tbl.Actions {
		decl, err := s.Decls.Get(actionID)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", tbl.Name, err)
		}

		hitSt := st.Clone()
		var hitCond ir.Expr
		for i, key := range tbl.Keys {
			label := fmt.Sprintf("%s_key%d", tbl.Name, i)
			cond, _ := s.keyCondition(hitSt, label, key)
			if cond == nil {
				continue
			}
			hitCond = andExpr(hitCond, cond)
		}
		if hitCond == nil {
			hitCond = ir.NewBool(true)
		}

		args := make([]ir.Expr, len(decl.Action.Params))
		for i, p := range decl.Action.Params {
			args[i] = s.zombie(hitSt, p.Type, fmt.Sprintf("%s_%s_profile%d_param%d", tbl.Name, decl.Name, idx, i))
		}
		st.Properties.Set(propZombieSeq, hitSt.Properties.GetInt(propZombieSeq))

		hitSt.Properties.Set(propTableHit(tbl.Name), true)
		hitSt.Properties.Set(propTableReached(tbl.Name), true)
		hitSt.LogEvent(trace.TableEvent(tbl.Name, true))
		hitSt.TestObjects.Set(
			state.TestObjectKey{Category: "action_profile", Name: fmt.Sprintf("%s#%d", tbl.Name, idx)},
			Profile{Name: tbl.Name, Index: idx, Action: decl.Name, Args: args},
		)
		if _, err := s.applyAction(hitSt, actionID, args, then); err != nil {
			return nil, err
		}
		branches = append(branches, state.Branch{Guard: hitCond, Next: hitSt})
		missNegation = andExpr(missNegation, ir.NewUnaryExpr(ir.LNOT, hitCond))
	}

	missSt := st.Clone()
	missSt.Properties.Set(propTableReached(tbl.Name), true)
	missSt.LogEvent(trace.TableEvent(tbl.Name, false))
	if _, err := s.applyAction(missSt, tbl.DefaultAction, nil, then); err != nil {
		return nil, err
	}
	branches = append(branches, state.Branch{Guard: missNegation, Next: missSt})
	return branches, nil
}
