//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package flow

import (
	"regexp"
	"strconv"
	"strings"

	"trpc.group/trpc-go/flow-controller/log"
)

// Comparison operators supported by condition nodes.
const (
	CompareIsSet           = "isSet"
	CompareIsNotSet        = "isNotSet"
	CompareEquals          = "equals"
	CompareNotEquals       = "notEquals"
	CompareContains        = "contains"
	CompareStartsWith      = "startsWith"
	CompareEndsWith        = "endsWith"
	CompareRegex           = "regex"
	CompareGreaterThan     = "greaterThan"
	CompareLessThan        = "lessThan"
	CompareGreaterOrEquals = "greaterOrEquals"
	CompareLessOrEquals    = "lessOrEquals"
)

// EvaluateCondition evaluates a condition node against the variable map.
// The trigger that brought the engine here is accepted for parity with the
// node contract but takes no part in any comparison.
//
// String comparisons are case-insensitive. A variable that is not set fails
// every comparison except isSet/isNotSet. regex matches the raw, pre-template
// pattern against the raw variable value and honors an inline [i] flag.
func EvaluateCondition(node *Node, trigger string, vars map[string]string) bool {
	if node.VariableName == nil || node.Comparison == "" {
		log.Warnf("condition: malformed node %q: missing variableName or comparison", node.ID)
		return false
	}

	name := Substitute(*node.VariableName, vars)
	raw, isSet := vars[name]

	var actual string
	if isSet {
		actual = Substitute(raw, vars)
	}

	expectedSet := node.Value != nil
	var expected string
	if expectedSet {
		expected = Substitute(*node.Value, vars)
	}

	log.Debugf("condition: var=%q actual=%q comparison=%q expected=%q",
		name, actual, node.Comparison, expected)

	switch node.Comparison {
	case CompareIsSet:
		return isSet && actual != "" && !strings.EqualFold(actual, "none")
	case CompareIsNotSet:
		return !isSet || actual == "" || strings.EqualFold(actual, "none")
	}

	if !isSet {
		return false
	}

	actualLower := strings.ToLower(actual)
	expectedLower := strings.ToLower(expected)

	switch node.Comparison {
	case CompareEquals:
		return expectedSet && actualLower == expectedLower
	case CompareNotEquals:
		return !expectedSet || actualLower != expectedLower
	case CompareContains:
		return expectedSet && strings.Contains(actualLower, expectedLower)
	case CompareStartsWith:
		return expectedSet && strings.HasPrefix(actualLower, expectedLower)
	case CompareEndsWith:
		return expectedSet && strings.HasSuffix(actualLower, expectedLower)
	case CompareRegex:
		if !expectedSet {
			return false
		}
		return matchRegex(*node.Value, raw)
	case CompareGreaterThan, CompareLessThan, CompareGreaterOrEquals, CompareLessOrEquals:
		if !expectedSet {
			return false
		}
		return compareNumeric(node.Comparison, actual, expected)
	}

	log.Warnf("condition: unknown comparison type %q on node %q", node.Comparison, node.ID)
	return false
}

// matchRegex applies the stored pattern against the raw variable value. The
// inline [i] marker is stripped from the pattern and turns on case-insensitive
// matching. Invalid patterns evaluate to false.
func matchRegex(pattern, value string) bool {
	if strings.Contains(pattern, "[i]") {
		pattern = "(?i)" + strings.ReplaceAll(pattern, "[i]", "")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Errorf("condition: invalid regex %q: %v", pattern, err)
		return false
	}
	return re.MatchString(value)
}

func compareNumeric(comparison, actual, expected string) bool {
	numActual, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	numExpected, errE := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if errA != nil || errE != nil {
		log.Warnf("condition: float conversion failed for %q or %q", actual, expected)
		return false
	}
	switch comparison {
	case CompareGreaterThan:
		return numActual > numExpected
	case CompareLessThan:
		return numActual < numExpected
	case CompareGreaterOrEquals:
		return numActual >= numExpected
	case CompareLessOrEquals:
		return numActual <= numExpected
	}
	return false
}
