package tool

import (
	"strings"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

var actionKeywords = map[string][]string{
	statex.ActionWeather: {"weather", "tide", "forecast", "날씨", "물때", "기상"},
	statex.ActionCatch:   {"fish", "catch", "stock", "어종", "조황", "물고기", "어획"},
	statex.ActionPlanner: {"plan", "budget", "reservation", "계획", "예약", "인원", "예산"},
	statex.ActionCall:    {"call", "phone", "contact", "전화", "연결", "예약해"},
}

// DeriveActions maps message content and the current missing list to the
// requested-action sequence for this pass. An incomplete plan always pulls
// the planner in, first.
func DeriveActions(message string, missing []string) []string {
	lowered := strings.ToLower(message)
	actions := make([]string, 0, 4)

	for _, name := range []string{
		statex.ActionWeather,
		statex.ActionCatch,
		statex.ActionPlanner,
		statex.ActionCall,
	} {
		for _, kw := range actionKeywords[name] {
			if strings.Contains(lowered, kw) {
				actions = append(actions, name)
				break
			}
		}
	}

	if len(actions) == 0 || len(missing) > 0 {
		if !containsAction(actions, statex.ActionPlanner) {
			actions = append([]string{statex.ActionPlanner}, actions...)
		}
	}
	return actions
}

// DetectBusiness returns the first candidate business name mentioned in
// the message.
func DetectBusiness(message string, candidates []string) string {
	lowered := strings.ToLower(message)
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func containsAction(actions []string, name string) bool {
	for _, a := range actions {
		if a == name {
			return true
		}
	}
	return false
}
