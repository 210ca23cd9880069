package sandbox

import (
	"fmt"
	"strings"
	"unicode"
)

// bannedKeywords are statement forms the static validator rejects
// outright.
var bannedKeywords = map[string]bool{
	"import": true, "global": true, "nonlocal": true, "def": true,
	"class": true, "lambda": true, "while": true, "try": true,
	"except": true, "with": true, "raise": true, "assert": true,
	"del": true,
}

// bannedIdentifiers may never appear as a bare name anywhere in the
// source, whether called or merely referenced.
var bannedIdentifiers = map[string]bool{
	"__import__": true, "__builtins__": true, "open": true, "eval": true,
	"exec": true, "compile": true, "globals": true, "locals": true,
	"vars": true, "dir": true, "help": true, "input": true,
	"breakpoint": true, "getattr": true, "setattr": true, "delattr": true,
	"hasattr": true, "type": true, "object": true, "super": true,
	"classmethod": true, "staticmethod": true, "property": true,
}

// allowedCallNames are bare-name calls the validator permits.
var allowedCallNames = map[string]bool{
	"abs": true, "all": true, "any": true, "bool": true, "dict": true,
	"enumerate": true, "filter": true, "float": true, "int": true,
	"len": true, "list": true, "map": true, "max": true, "min": true,
	"pow": true, "range": true, "reversed": true, "round": true,
	"set": true, "sorted": true, "str": true, "sum": true, "tuple": true,
	"zip": true, "print": true,
}

// allowedModules are the dotted-attribute call targets permitted
// (module.func(...)).
var allowedModules = map[string]bool{"math": true, "json": true, "re": true}

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokNumber
	tokOp
	tokOther
)

type token struct {
	kind tokKind
	text string
}

// Validate performs the static pre-flight check the executor
// requires: it tokenizes code with a hand-rolled Python-subset lexer
// (not a real parser) and rejects banned statement
// keywords, dunder attribute access, banned identifiers, and any call
// target that is neither a whitelisted builtin nor an attribute call on
// an allowed module.
func Validate(code string) error {
	toks := tokenize(code)
	for i, t := range toks {
		switch t.kind {
		case tokIdent:
			if bannedKeywords[t.text] {
				return fmt.Errorf("sandbox: disallowed statement %q", t.text)
			}
			if bannedIdentifiers[t.text] {
				return fmt.Errorf("sandbox: disallowed identifier %q", t.text)
			}
			if strings.HasPrefix(t.text, "__") {
				return fmt.Errorf("sandbox: disallowed dunder identifier %q", t.text)
			}
			if err := checkCallTarget(toks, i); err != nil {
				return err
			}
		case tokOp:
			if t.text == "." && i+1 < len(toks) && toks[i+1].kind == tokIdent && strings.HasPrefix(toks[i+1].text, "__") {
				return fmt.Errorf("sandbox: disallowed dunder attribute %q", toks[i+1].text)
			}
		}
	}
	return nil
}

// checkCallTarget looks at toks[i] (an identifier) followed by "(" to
// decide whether this is a bare-name call or, preceded by "dot ident",
// a module-attribute call, and enforces the whitelist in either case.
// Non-call identifier occurrences (not followed by "(") are left to the
// banned-identifier check above; arbitrary variable names are fine.
func checkCallTarget(toks []token, i int) error {
	if i+1 >= len(toks) || toks[i+1].kind != tokOp || toks[i+1].text != "(" {
		return nil
	}
	name := toks[i].text
	// module.func(...) form: toks[i-2]=module ident, toks[i-1]="."
	if i >= 2 && toks[i-1].kind == tokOp && toks[i-1].text == "." && toks[i-2].kind == tokIdent {
		module := toks[i-2].text
		if allowedModules[module] {
			return nil
		}
		return fmt.Errorf("sandbox: call to %s.%s is not permitted", module, name)
	}
	if allowedCallNames[name] {
		return nil
	}
	return fmt.Errorf("sandbox: call to %q is not permitted", name)
}

// tokenize is a minimal scanner sufficient to find identifiers, string
// literals (so keywords/identifiers inside strings are never
// misinterpreted), numbers, and the operators the validator inspects
// ("." and "("). It is deliberately not a full Python tokenizer: strings,
// comments, identifiers/keywords, numbers, and punctuation are all this
// validator needs to see.
func tokenize(src string) []token {
	var toks []token
	runes := []rune(src)
	n := len(runes)
	i := 0
	for i < n {
		c := runes[i]
		switch {
		case c == '#':
			for i < n && runes[i] != '\n' {
				i++
			}
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < n && runes[j] != quote {
				if runes[j] == '\\' && j+1 < n {
					j++
				}
				j++
			}
			if j < n {
				j++
			}
			toks = append(toks, token{kind: tokString, text: string(runes[i:j])})
			i = j
		case unicode.IsDigit(c):
			j := i
			for j < n && (unicode.IsDigit(runes[j]) || runes[j] == '.' || runes[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < n && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(runes[i:j])})
			i = j
		case c == '.' || c == '(' || c == ')':
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		default:
			toks = append(toks, token{kind: tokOther, text: string(c)})
			i++
		}
	}
	return toks
}
