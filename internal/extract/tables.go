package extract

// langTable is the node-kind dispatch table for one language. The
// extractor is polymorphic over these tables; unknown node kinds fall
// through to a single default path that records the raw kind in
// language_features. Kinds follow each grammar's node-types.json.
type langTable struct {
	// kindToType maps declarative node kinds to the closed BlockType enum.
	kindToType map[string]BlockType

	// decisionKinds contribute to cyclomatic and cognitive complexity.
	decisionKinds map[string]bool

	// shortCircuitKinds are binary-expression kinds counted as decisions
	// when their operator field spells a short-circuit operator.
	shortCircuitKinds map[string]bool

	// callKinds are call-expression node kinds; calleeField names the
	// field holding the callee expression.
	callKinds   map[string]bool
	calleeField string

	commentKinds   map[string]bool
	modifierKinds  map[string]bool
	decoratorKinds map[string]bool

	// heritageFields/implementsFields name the fields on class-like nodes
	// that list base classes and implemented interfaces.
	heritageFields   []string
	implementsFields []string

	// paramFields and returnFields name the fields holding parameter
	// lists and return types on function-like nodes.
	paramFields  []string
	returnFields []string

	// declaratorName is set for languages (c, cpp) where the declared
	// name sits under nested declarator fields rather than a name field.
	declaratorName bool
}

var langTables = map[string]*langTable{
	"python": {
		kindToType: map[string]BlockType{
			"function_definition":     BlockFunction,
			"class_definition":        BlockClass,
			"import_statement":        BlockImport,
			"import_from_statement":   BlockImport,
			"future_import_statement": BlockImport,
			"decorated_definition":    BlockOther, // unwrapped by the extractor
			"comment":                 BlockComment,
		},
		decisionKinds: map[string]bool{
			"if_statement":           true,
			"elif_clause":            true,
			"for_statement":          true,
			"while_statement":        true,
			"except_clause":          true,
			"conditional_expression": true,
			"case_clause":            true,
			"boolean_operator":       true,
		},
		callKinds:      map[string]bool{"call": true},
		calleeField:    "function",
		commentKinds:   map[string]bool{"comment": true},
		decoratorKinds: map[string]bool{"decorator": true},
		heritageFields: []string{"superclasses"},
		paramFields:    []string{"parameters"},
		returnFields:   []string{"return_type"},
	},
	"javascript": {
		kindToType: map[string]BlockType{
			"function_declaration":           BlockFunction,
			"generator_function_declaration": BlockFunction,
			"class_declaration":              BlockClass,
			"method_definition":              BlockMethod,
			"lexical_declaration":            BlockVariable,
			"variable_declaration":           BlockVariable,
			"import_statement":               BlockImport,
			"export_statement":               BlockExport,
			"comment":                        BlockComment,
		},
		decisionKinds: map[string]bool{
			"if_statement":       true,
			"for_statement":      true,
			"for_in_statement":   true,
			"while_statement":    true,
			"do_statement":       true,
			"switch_case":        true,
			"catch_clause":       true,
			"ternary_expression": true,
		},
		shortCircuitKinds: map[string]bool{"binary_expression": true},
		callKinds:         map[string]bool{"call_expression": true, "new_expression": true},
		calleeField:       "function",
		commentKinds:      map[string]bool{"comment": true},
		decoratorKinds:    map[string]bool{"decorator": true},
		heritageFields:    []string{"class_heritage"},
		paramFields:       []string{"parameters"},
	},
	"go": {
		kindToType: map[string]BlockType{
			"function_declaration": BlockFunction,
			"method_declaration":   BlockMethod,
			"type_declaration":     BlockClass, // refined to Interface for interface types
			"var_declaration":      BlockVariable,
			"const_declaration":    BlockConstant,
			"import_declaration":   BlockImport,
			"comment":              BlockComment,
		},
		decisionKinds: map[string]bool{
			"if_statement":       true,
			"for_statement":      true,
			"expression_case":    true,
			"type_case":          true,
			"communication_case": true,
			"default_case":       true,
		},
		shortCircuitKinds: map[string]bool{"binary_expression": true},
		callKinds:         map[string]bool{"call_expression": true},
		calleeField:       "function",
		commentKinds:      map[string]bool{"comment": true},
		paramFields:       []string{"parameters"},
		returnFields:      []string{"result"},
	},
	"rust": {
		kindToType: map[string]BlockType{
			"function_item":    BlockFunction,
			"struct_item":      BlockClass,
			"enum_item":        BlockClass,
			"trait_item":       BlockInterface,
			"impl_item":        BlockOther, // children become methods; trait impls add edges
			"mod_item":         BlockModule,
			"use_declaration":  BlockImport,
			"const_item":       BlockConstant,
			"static_item":      BlockVariable,
			"macro_definition": BlockFunction,
			"line_comment":     BlockComment,
			"block_comment":    BlockComment,
		},
		decisionKinds: map[string]bool{
			"if_expression":    true,
			"match_arm":        true,
			"while_expression": true,
			"for_expression":   true,
			"loop_expression":  true,
		},
		shortCircuitKinds: map[string]bool{"binary_expression": true},
		callKinds:         map[string]bool{"call_expression": true, "macro_invocation": true},
		calleeField:       "function",
		commentKinds:      map[string]bool{"line_comment": true, "block_comment": true},
		decoratorKinds:    map[string]bool{"attribute_item": true},
		implementsFields:  []string{"trait"},
		paramFields:       []string{"parameters"},
		returnFields:      []string{"return_type"},
	},
	"c": {
		kindToType: map[string]BlockType{
			"function_definition": BlockFunction,
			"struct_specifier":    BlockClass,
			"enum_specifier":      BlockClass,
			"union_specifier":     BlockClass,
			"type_definition":     BlockClass,
			"declaration":         BlockVariable,
			"preproc_include":     BlockImport,
			"preproc_def":         BlockConstant,
			"comment":             BlockComment,
		},
		decisionKinds: map[string]bool{
			"if_statement":           true,
			"for_statement":          true,
			"while_statement":        true,
			"do_statement":           true,
			"case_statement":         true,
			"conditional_expression": true,
		},
		shortCircuitKinds: map[string]bool{"binary_expression": true},
		callKinds:         map[string]bool{"call_expression": true},
		calleeField:       "function",
		commentKinds:      map[string]bool{"comment": true},
		paramFields:       []string{"parameters"},
		declaratorName:    true,
	},
	"java": {
		kindToType: map[string]BlockType{
			"class_declaration":       BlockClass,
			"interface_declaration":   BlockInterface,
			"enum_declaration":        BlockClass,
			"record_declaration":      BlockClass,
			"method_declaration":      BlockMethod,
			"constructor_declaration": BlockMethod,
			"field_declaration":       BlockVariable,
			"import_declaration":      BlockImport,
			"package_declaration":     BlockModule,
			"line_comment":            BlockComment,
			"block_comment":           BlockComment,
		},
		decisionKinds: map[string]bool{
			"if_statement":           true,
			"for_statement":          true,
			"enhanced_for_statement": true,
			"while_statement":        true,
			"do_statement":           true,
			"switch_label":           true,
			"catch_clause":           true,
			"ternary_expression":     true,
		},
		shortCircuitKinds: map[string]bool{"binary_expression": true},
		callKinds:         map[string]bool{"method_invocation": true, "object_creation_expression": true},
		calleeField:       "name",
		commentKinds:      map[string]bool{"line_comment": true, "block_comment": true},
		modifierKinds:     map[string]bool{"modifiers": true},
		decoratorKinds:    map[string]bool{"marker_annotation": true, "annotation": true},
		heritageFields:    []string{"superclass"},
		implementsFields:  []string{"interfaces"},
		paramFields:       []string{"parameters"},
		returnFields:      []string{"type"},
	},
	"css": {
		kindToType: map[string]BlockType{
			"rule_set":            BlockOther,
			"import_statement":    BlockImport,
			"media_statement":     BlockOther,
			"keyframes_statement": BlockOther,
			"comment":             BlockComment,
		},
		commentKinds: map[string]bool{"comment": true},
	},
	"html": {
		kindToType: map[string]BlockType{
			"element":        BlockOther,
			"script_element": BlockOther,
			"style_element":  BlockOther,
			"doctype":        BlockOther,
			"comment":        BlockComment,
		},
		commentKinds: map[string]bool{"comment": true},
	},
}

// typescript extends javascript with its declaration kinds.
func init() {
	js := langTables["javascript"]
	tsTable := &langTable{
		kindToType:        make(map[string]BlockType, len(js.kindToType)+5),
		decisionKinds:     js.decisionKinds,
		shortCircuitKinds: js.shortCircuitKinds,
		callKinds:         js.callKinds,
		calleeField:       js.calleeField,
		commentKinds:      js.commentKinds,
		decoratorKinds:    js.decoratorKinds,
		heritageFields:    js.heritageFields,
		implementsFields:  []string{"implements_clause"},
		paramFields:       js.paramFields,
		returnFields:      []string{"return_type"},
	}
	for k, v := range js.kindToType {
		tsTable.kindToType[k] = v
	}
	tsTable.kindToType["interface_declaration"] = BlockInterface
	tsTable.kindToType["enum_declaration"] = BlockClass
	tsTable.kindToType["type_alias_declaration"] = BlockClass
	tsTable.kindToType["abstract_class_declaration"] = BlockClass
	tsTable.kindToType["function_signature"] = BlockFunction
	langTables["typescript"] = tsTable

	// cpp extends c with class and namespace kinds.
	c := langTables["c"]
	cppTable := &langTable{
		kindToType:        make(map[string]BlockType, len(c.kindToType)+3),
		decisionKinds:     c.decisionKinds,
		shortCircuitKinds: c.shortCircuitKinds,
		callKinds:         c.callKinds,
		calleeField:       c.calleeField,
		commentKinds:      c.commentKinds,
		heritageFields:    []string{"base_class_clause"},
		paramFields:       c.paramFields,
		returnFields:      c.returnFields,
		declaratorName:    true,
	}
	for k, v := range c.kindToType {
		cppTable.kindToType[k] = v
	}
	cppTable.kindToType["class_specifier"] = BlockClass
	cppTable.kindToType["namespace_definition"] = BlockModule
	cppTable.kindToType["template_declaration"] = BlockOther
	langTables["cpp"] = cppTable
}

// tableForLanguage returns the dispatch table for a language. Every
// registered language has a table; the boolean mirrors map access for
// callers that handle future registry growth.
func tableForLanguage(lang string) (*langTable, bool) {
	t, ok := langTables[lang]
	return t, ok
}

// shortCircuitOps spell boolean short-circuit in operator fields.
var shortCircuitOps = map[string]bool{
	"&&": true, "||": true, "and": true, "or": true,
}
