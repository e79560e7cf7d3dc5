package trellis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/jward/trellis/internal/fault"
	"github.com/jward/trellis/internal/store"
)

// PatternMatch is one block flagged by a pattern analysis.
type PatternMatch struct {
	Block  *store.Block `json:"block"`
	Reason string       `json:"reason"`
}

// Pattern thresholds.
const (
	complexityThreshold = 10
	longMethodLines     = 50
	manyParamsThreshold = 5
	secretEntropyMin    = 4.0
	secretLengthMin     = 20
)

// FindPattern runs one named analysis from the closed catalog and
// returns matching blocks in (container, position) order.
func (q *QueryBuilder) FindPattern(name string) ([]PatternMatch, error) {
	switch name {
	case "untested_function":
		return q.untestedFunctions()
	case "complex_function":
		return q.thresholdPattern("cyclomatic_complexity", complexityThreshold,
			func(b *store.Block) string {
				return fmt.Sprintf("cyclomatic complexity %d exceeds %d", b.Cyclomatic, complexityThreshold)
			})
	case "long_method":
		return q.thresholdPattern("lines_of_code", longMethodLines,
			func(b *store.Block) string {
				return fmt.Sprintf("%d lines exceed %d", b.LinesOfCode, longMethodLines)
			})
	case "many_parameters":
		return q.manyParameters()
	case "duplicate_name":
		return q.duplicateNames()
	case "circular_dependency":
		return q.circularDependencies()
	case "sql_in_loop":
		return q.textPattern(loopKinds, sqlRe, "SQL statement inside a loop")
	case "hardcoded_secret":
		return q.hardcodedSecrets()
	case "unsafe_execution":
		return q.textPattern(nil, unsafeExecRe, "dynamic code or shell execution")
	case "sync_io_in_async_context":
		return q.syncIOInAsync()
	default:
		return nil, fault.Newf(fault.KindInput, "find pattern", "unknown pattern %q", name)
	}
}

// functionBlocks loads all function and method blocks in deterministic
// order.
func (q *QueryBuilder) functionBlocks() ([]*store.Block, error) {
	rows, err := q.store.DB().Query(
		`SELECT b.id FROM blocks b
		 JOIN containers c ON c.id = b.container_id
		 WHERE b.block_type IN ('function', 'method')
		 ORDER BY c.name, b.position`,
	)
	if err != nil {
		return nil, fmt.Errorf("function blocks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	blocks := make([]*store.Block, 0, len(ids))
	for _, id := range ids {
		b, err := q.store.BlockByID(id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

// untestedFunctions lists functions with no inbound tests edge. Test
// functions themselves are excluded.
func (q *QueryBuilder) untestedFunctions() ([]PatternMatch, error) {
	rows, err := q.store.DB().Query(
		`SELECT b.id FROM blocks b
		 JOIN containers c ON c.id = b.container_id
		 WHERE b.block_type IN ('function', 'method')
		   AND NOT EXISTS (
		     SELECT 1 FROM block_relationships r
		     WHERE r.target_block_id = b.id AND r.relationship_type = 'tests'
		   )
		   AND NOT EXISTS (
		     SELECT 1 FROM block_relationships r
		     WHERE r.source_block_id = b.id AND r.relationship_type = 'tests'
		   )
		 ORDER BY c.name, b.position`,
	)
	if err != nil {
		return nil, fmt.Errorf("untested functions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var matches []PatternMatch
	for _, id := range ids {
		b, err := q.store.BlockByID(id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			matches = append(matches, PatternMatch{Block: b, Reason: "no tests relationship targets this function"})
		}
	}
	return matches, nil
}

// thresholdPattern flags blocks whose integer column exceeds a limit.
func (q *QueryBuilder) thresholdPattern(column string, threshold int, reason func(*store.Block) string) ([]PatternMatch, error) {
	rows, err := q.store.DB().Query(fmt.Sprintf(
		`SELECT b.id FROM blocks b
		 JOIN containers c ON c.id = b.container_id
		 WHERE b.block_type IN ('function', 'method') AND b.%s > ?
		 ORDER BY c.name, b.position`, column), threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", column, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var matches []PatternMatch
	for _, id := range ids {
		b, err := q.store.BlockByID(id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			matches = append(matches, PatternMatch{Block: b, Reason: reason(b)})
		}
	}
	return matches, nil
}

func (q *QueryBuilder) manyParameters() ([]PatternMatch, error) {
	blocks, err := q.functionBlocks()
	if err != nil {
		return nil, err
	}
	var matches []PatternMatch
	for _, b := range blocks {
		if len(b.Parameters) > manyParamsThreshold {
			matches = append(matches, PatternMatch{
				Block:  b,
				Reason: fmt.Sprintf("%d parameters exceed %d", len(b.Parameters), manyParamsThreshold),
			})
		}
	}
	return matches, nil
}

// duplicateNames flags declarative blocks sharing a semantic name.
func (q *QueryBuilder) duplicateNames() ([]PatternMatch, error) {
	rows, err := q.store.DB().Query(
		`SELECT b.id, b.semantic_name FROM blocks b
		 JOIN containers c ON c.id = b.container_id
		 WHERE b.semantic_name IS NOT NULL
		   AND b.block_type IN ('function', 'method', 'class', 'interface')
		   AND b.semantic_name IN (
		     SELECT semantic_name FROM blocks
		     WHERE semantic_name IS NOT NULL
		       AND block_type IN ('function', 'method', 'class', 'interface')
		     GROUP BY semantic_name HAVING COUNT(*) > 1
		   )
		 ORDER BY c.name, b.position`,
	)
	if err != nil {
		return nil, fmt.Errorf("duplicate names: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id   int64
		name string
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.name); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var matches []PatternMatch
	for _, h := range hits {
		b, err := q.store.BlockByID(h.id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			matches = append(matches, PatternMatch{Block: b, Reason: fmt.Sprintf("name %q declared more than once", h.name)})
		}
	}
	return matches, nil
}

// circularDependencies flags every block participating in a dependency
// cycle.
func (q *QueryBuilder) circularDependencies() ([]PatternMatch, error) {
	data, err := q.buildDependencyData()
	if err != nil {
		return nil, err
	}
	all := make(map[int64]int)
	for id := range data.forward {
		all[id] = 0
		for _, e := range data.forward[id] {
			all[e.TargetID] = 0
		}
	}
	cycles := findCycles(all, data)

	inCycle := make(map[int64][]int64)
	for _, cycle := range cycles {
		for _, id := range cycle[:len(cycle)-1] {
			inCycle[id] = cycle
		}
	}

	var matches []PatternMatch
	for id, cycle := range inCycle {
		b, err := q.store.BlockByID(id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			matches = append(matches, PatternMatch{
				Block:  b,
				Reason: fmt.Sprintf("participates in dependency cycle %v", cycle),
			})
		}
	}
	sortMatches(matches)
	return matches, nil
}

var (
	sqlRe = regexp.MustCompile(`(?i)\b(SELECT\s+.+\s+FROM|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)\b`)

	unsafeExecRe = regexp.MustCompile(`\b(eval|exec|execfile|os\.system|subprocess\.(run|call|Popen)|child_process|Runtime\.getRuntime\(\)\.exec|system)\s*\(`)

	syncIORe = regexp.MustCompile(`\b(time\.sleep|requests\.(get|post|put|delete)|open|readFileSync|writeFileSync|execSync)\s*\(`)

	secretAssignRe = regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|token|credential)s?\s*[:=]\s*["']([^"']{6,})["']`)
	awsKeyRe       = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	privateKeyRe   = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)
)

// loopKinds are normalized node kinds indicating a loop across the
// registered languages.
var loopKinds = map[string]bool{
	"for_statement": true, "while_statement": true, "do_statement": true,
	"for_in_statement": true, "for_expression": true, "while_expression": true,
	"loop_expression": true, "enhanced_for_statement": true,
}

// textPattern flags function blocks whose raw text matches re. When
// kinds is non-nil the block's normalized structure must also contain
// one of the kinds (e.g. a loop).
func (q *QueryBuilder) textPattern(kinds map[string]bool, re *regexp.Regexp, reason string) ([]PatternMatch, error) {
	blocks, err := q.functionBlocks()
	if err != nil {
		return nil, err
	}
	var matches []PatternMatch
	for _, b := range blocks {
		if kinds != nil && !containsKind(b.Normalized, kinds) {
			continue
		}
		if re.MatchString(b.RawText) {
			matches = append(matches, PatternMatch{Block: b, Reason: reason})
		}
	}
	return matches, nil
}

func containsKind(normalized []string, kinds map[string]bool) bool {
	for _, k := range normalized {
		if kinds[k] {
			return true
		}
	}
	return false
}

// hardcodedSecrets combines assignment patterns, known key formats, and
// a Shannon-entropy check on the assigned value.
func (q *QueryBuilder) hardcodedSecrets() ([]PatternMatch, error) {
	rows, err := q.store.DB().Query(
		`SELECT b.id FROM blocks b
		 JOIN containers c ON c.id = b.container_id
		 ORDER BY c.name, b.position`,
	)
	if err != nil {
		return nil, fmt.Errorf("hardcoded secrets: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var matches []PatternMatch
	for _, id := range ids {
		b, err := q.store.BlockByID(id)
		if err != nil {
			return nil, err
		}
		if b == nil || b.Type == "module" {
			continue // module blocks span the file and would double-report
		}
		if reason := secretReason(b.RawText); reason != "" {
			matches = append(matches, PatternMatch{Block: b, Reason: reason})
		}
	}
	return matches, nil
}

func secretReason(text string) string {
	if awsKeyRe.MatchString(text) {
		return "AWS access key id"
	}
	if privateKeyRe.MatchString(text) {
		return "embedded private key"
	}
	if m := secretAssignRe.FindStringSubmatch(text); m != nil {
		value := m[2]
		if len(value) >= secretLengthMin && shannonEntropy(value) >= secretEntropyMin {
			return fmt.Sprintf("high-entropy value assigned to %q", strings.ToLower(m[1]))
		}
		return fmt.Sprintf("literal value assigned to %q", strings.ToLower(m[1]))
	}
	return ""
}

// shannonEntropy measures bits per character of a string.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int)
	for _, r := range s {
		freq[r]++
	}
	entropy := 0.0
	n := float64(len([]rune(s)))
	for _, count := range freq {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// syncIOInAsync flags async functions whose bodies call synchronous IO.
func (q *QueryBuilder) syncIOInAsync() ([]PatternMatch, error) {
	blocks, err := q.functionBlocks()
	if err != nil {
		return nil, err
	}
	var matches []PatternMatch
	for _, b := range blocks {
		if !hasModifier(b.Modifiers, "async") {
			continue
		}
		if syncIORe.MatchString(b.RawText) {
			matches = append(matches, PatternMatch{Block: b, Reason: "synchronous IO inside async function"})
		}
	}
	return matches, nil
}

func hasModifier(modifiers []string, want string) bool {
	for _, m := range modifiers {
		if m == want {
			return true
		}
	}
	return false
}

// sortMatches orders analyses assembled from maps by (container,
// position).
func sortMatches(matches []PatternMatch) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].Block, matches[j].Block
		if a.ContainerID != b.ContainerID {
			return a.ContainerID < b.ContainerID
		}
		return a.Position < b.Position
	})
}
