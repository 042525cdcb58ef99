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
	"strings"
)

// maxSubstitutePasses bounds nested template expansion. Templates nested
// deeper than this are not supported and remain partially expanded.
const maxSubstitutePasses = 5

var placeholderRE = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Substitute replaces every {{name}} occurrence in text with vars[name],
// trimming whitespace around the name. Unknown names are left literally
// unchanged so later passes (or later nodes) may still resolve them. The
// replacement runs up to maxSubstitutePasses times to expand references whose
// value itself contains placeholders, stopping early once a pass changes
// nothing.
func Substitute(text string, vars map[string]string) string {
	out := text
	for i := 0; i < maxSubstitutePasses; i++ {
		next := placeholderRE.ReplaceAllStringFunc(out, func(match string) string {
			name := strings.TrimSpace(match[2 : len(match)-2])
			if v, ok := vars[name]; ok {
				return v
			}
			return match
		})
		if next == out {
			break
		}
		out = next
	}
	return out
}
