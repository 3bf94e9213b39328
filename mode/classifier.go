package mode

import "strings"

// buildKeywords trigger an advisory Plan -> Build transition proposal.
var buildKeywords = []string{"implement", "write", "edit", "fix", "change", "modify", "create file"}

// planKeywords trigger the symmetric Build -> Plan proposal.
var planKeywords = []string{"explain", "investigate", "look at", "understand", "what does", "review", "explore"}

// ProposeTransition classifies free-form user text by keyword family and
// returns the mode it proposes, or the current mode unchanged if nothing
// matched. Classification is advisory per §4.4: a turn's explicit mode
// directive, when present, always wins over this.
func ProposeTransition(current Mode, text string) Mode {
	lower := strings.ToLower(text)
	switch current {
	case Plan:
		if containsAny(lower, buildKeywords) {
			return Build
		}
	case Build:
		if containsAny(lower, planKeywords) {
			return Plan
		}
	}
	return current
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// roleKeywords maps each top-level-selectable role to the keyword bucket
// that picks it, in priority order: ties resolve to the earlier entry.
var roleKeywords = []struct {
	role     RoleName
	keywords []string
}{
	{Explorer, []string{"what does", "explain", "understand", "explore", "look at", "investigate"}},
	{Builder, []string{"implement", "add", "create", "build", "write"}},
	{Debugger, []string{"fix", "bug", "error", "failing", "crash", "broken"}},
	{Refactorer, []string{"refactor", "clean up", "restructure", "simplify", "rename"}},
}

// SelectRole maps free-form intent text to a top-level-selectable role.
// Bucket order is the tie-break priority named in §4.4. Falls back to
// Explorer when nothing matches, since Explorer is the session's initial
// role and the safest default.
func SelectRole(intent string) RoleName {
	lower := strings.ToLower(intent)
	for _, bucket := range roleKeywords {
		if containsAny(lower, bucket.keywords) {
			return bucket.role
		}
	}
	return Explorer
}
