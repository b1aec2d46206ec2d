// Copyright 2026 The Pixie Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sort"
	"strings"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult is the score and matched-rune positions for one fuzzy
// match against a single field, mirroring the shape of the teacher's
// lib/ticketui.FuzzyResult.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// fuzzySlab is fzf's scratch buffer for its matcher, reused across
// calls the way fzf's own finder reuses one per worker rather than
// allocating on every keystroke.
var fuzzySlab = util.MakeSlab(100*1024, 2048)

// fuzzyMatch scores text against pattern with fzf's V2 algorithm
// (github.com/junegunn/fzf/src/algo), the same matcher fzf itself
// uses by default. Both sides are lowercased first so a query like
// "abc" matches "ABC-unit" — fzf's smart-case behavior, simplified to
// always-insensitive since pixie-top has no separate case-sensitive
// mode. Returns a zero FuzzyResult (Score 0, nil Positions) when
// pattern is empty or does not match.
func fuzzyMatch(text string, pattern []rune) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}

	lowered := make([]rune, len(pattern))
	for i, r := range pattern {
		lowered[i] = unicode.ToLower(r)
	}
	chars := util.RunesToChars([]rune(strings.ToLower(text)))

	result, positions := algo.FuzzyMatchV2(true, true, true, &chars, lowered, true, fuzzySlab)
	if result.Score <= 0 || positions == nil {
		return FuzzyResult{}
	}

	sorted := append([]int(nil), (*positions)...)
	sort.Ints(sorted)
	return FuzzyResult{Score: int(result.Score), Positions: sorted}
}
