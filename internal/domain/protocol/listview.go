package protocol

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// TypeFilterAll passes every type through the list filter.
const TypeFilterAll = "all"

// ListQuery narrows the summary list before grouping. Type is a tag value or
// "all"; Search matches case-insensitively against chiffre OR
// protokollnummer.
type ListQuery struct {
	Type   string
	Search string
}

// Group is one chiffre partition of the filtered list.
type Group struct {
	Chiffre string     `json:"chiffre"`
	Items   []ListItem `json:"items"`
}

// chiffre ordering is locale-aware; the patient ciphers are assigned in a
// German-speaking practice.
var chiffreCollator = collate.New(language.German)

// Filter applies the type filter and free-text search. An empty result is a
// valid outcome, not an error.
func Filter(items []ListItem, q ListQuery) []ListItem {
	out := make([]ListItem, 0, len(items))
	term := strings.ToLower(strings.TrimSpace(q.Search))
	for _, it := range items {
		if q.Type != "" && q.Type != TypeFilterAll && string(it.ProtocolType) != q.Type {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(it.Chiffre), term) &&
			!strings.Contains(strings.ToLower(it.Protokollnummer), term) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// GroupByChiffre partitions items by exact chiffre, orders groups by locale
// collation ascending, and orders each group's items by the numeric value
// embedded in the protokollnummer (non-digits stripped, unparseable counts as
// 0), with locale comparison of the full label as tie-break.
func GroupByChiffre(items []ListItem) []Group {
	byChiffre := make(map[string][]ListItem)
	for _, it := range items {
		byChiffre[it.Chiffre] = append(byChiffre[it.Chiffre], it)
	}

	groups := make([]Group, 0, len(byChiffre))
	for chiffre, members := range byChiffre {
		sort.SliceStable(members, func(i, j int) bool {
			ni, nj := NumericProtokollnummer(members[i].Protokollnummer), NumericProtokollnummer(members[j].Protokollnummer)
			if ni != nj {
				return ni < nj
			}
			return chiffreCollator.CompareString(members[i].Protokollnummer, members[j].Protokollnummer) < 0
		})
		groups = append(groups, Group{Chiffre: chiffre, Items: members})
	}

	sort.Slice(groups, func(i, j int) bool {
		return chiffreCollator.CompareString(groups[i].Chiffre, groups[j].Chiffre) < 0
	})
	return groups
}

// NumericProtokollnummer extracts the integer embedded in a protokollnummer
// label: all non-digit runes are stripped and the rest parsed. Missing or
// unparseable digits yield 0.
func NumericProtokollnummer(label string) int {
	var b strings.Builder
	for _, r := range label {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

// Expansion tracks which groups are open. Missing keys count as collapsed.
type Expansion map[string]bool

// AllExpanded reports whether every listed group is currently open. An empty
// group list counts as all-expanded.
func (e Expansion) AllExpanded(groups []Group) bool {
	for _, g := range groups {
		if !e[g.Chiffre] {
			return false
		}
	}
	return true
}

// ToggleAll expands every group unless all are already expanded, in which
// case it collapses them all. It returns the new expansion state.
func (e Expansion) ToggleAll(groups []Group) Expansion {
	expand := !e.AllExpanded(groups)
	next := make(Expansion, len(groups))
	for _, g := range groups {
		next[g.Chiffre] = expand
	}
	return next
}
