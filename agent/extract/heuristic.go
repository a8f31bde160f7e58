package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// DefaultGear is applied when a message advances the plan without saying
// anything about equipment; most local operators rent on site.
const DefaultGear = "on-site rental"

var (
	isoDatePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	monthDayPattern  = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})\b`)
	koreanDayPattern = regexp.MustCompile(`(\d{1,2})\s*월\s*(\d{1,2})\s*일`)

	adultsPattern   = regexp.MustCompile(`(?i)(\d+)\s*(?:adults?|성인)`)
	childrenPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:children|child|kids?|어린이|아이)`)
	totalPattern    = regexp.MustCompile(`(?i)(\d+)\s*(?:people|persons?|명|인원|인)`)

	budgetPattern = regexp.MustCompile(`(?i)(?:budget|예산)\s*:?\s*([\d,]+)`)
	moneyPattern  = regexp.MustCompile(`(?i)([\d,]+)\s*(?:won|krw|원|만원)`)
)

var fishingTypeKeywords = map[string][]string{
	"boat":    {"boat", "선상", "출조"},
	"pier":    {"pier", "방파제", "포구"},
	"rock":    {"rock", "shore", "갯바위"},
	"jigging": {"jigging", "지깅"},
}

var transportKeywords = map[string][]string{
	"car":    {"car", "drive", "자가용", "렌트"},
	"bus":    {"bus", "버스"},
	"train":  {"train", "ktx", "기차"},
	"public": {"public transit", "대중교통"},
}

var speciesKeywords = []string{
	"mackerel", "squid", "octopus", "seabream",
	"고등어", "한치", "문어", "감성돔",
}

// HeuristicExtractor is the rule-based path, also the fallback when the
// model is unavailable.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor { return &HeuristicExtractor{} }

func (h *HeuristicExtractor) Extract(ctx context.Context, message string, plan statex.PlanSnapshot) (Result, error) {
	var res Result
	lowered := strings.ToLower(message)

	if date := extractDate(message); date != "" {
		res.add(statex.UpdatePlanDate, date)
		plan.Date = date
	}
	if participants := extractParticipants(message); participants > 0 {
		res.add(statex.UpdatePlanParticipants, participants)
		plan.Participants = participants
	}
	if budget := extractBudget(message); budget != "" {
		res.add(statex.UpdatePlanBudget, budget)
		plan.Budget = budget
	}
	if ftype := matchKeyword(lowered, fishingTypeKeywords); ftype != "" {
		res.add(statex.UpdatePlanFishingType, ftype)
		plan.FishingType = ftype
	}
	if transport := matchKeyword(lowered, transportKeywords); transport != "" {
		res.add(statex.UpdatePlanTransport, transport)
		plan.Transport = transport
	}
	if gear := extractGear(lowered); gear != "" {
		res.add(statex.UpdatePlanGear, gear)
		plan.Gear = gear
	}
	for _, sp := range speciesKeywords {
		if strings.Contains(lowered, sp) {
			res.add(statex.UpdatePlanTargetSpecies, sp)
			plan.TargetSpecies = sp
			break
		}
	}

	applyGearDefault(&res, plan)
	res.Summary = summarize(plan, res.DefaultsApplied)
	return res, nil
}

// applyGearDefault fills gear when the message advanced other plan fields
// but said nothing about equipment.
func applyGearDefault(res *Result, plan statex.PlanSnapshot) {
	if plan.Gear != "" || len(res.Updates) == 0 {
		return
	}
	res.add(statex.UpdatePlanGear, DefaultGear)
	res.DefaultsApplied = append(res.DefaultsApplied, statex.FieldGear)
}

func extractDate(message string) string {
	if m := isoDatePattern.FindString(message); m != "" {
		return m
	}
	if m := monthDayPattern.FindStringSubmatch(message); m != nil {
		month := strings.ToLower(m[1])
		return strings.ToUpper(month[:1]) + month[1:] + " " + m[2]
	}
	if m := koreanDayPattern.FindStringSubmatch(message); m != nil {
		return m[1] + "월 " + m[2] + "일"
	}
	return ""
}

func extractParticipants(message string) int {
	adults := firstInt(adultsPattern, message)
	children := firstInt(childrenPattern, message)
	if adults+children > 0 {
		return adults + children
	}
	return firstInt(totalPattern, message)
}

func extractBudget(message string) string {
	if m := budgetPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	if m := moneyPattern.FindString(message); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

func extractGear(lowered string) string {
	switch {
	case strings.Contains(lowered, "rental") || strings.Contains(lowered, "rent") ||
		strings.Contains(lowered, "대여") || strings.Contains(lowered, "렌탈"):
		return DefaultGear
	case strings.Contains(lowered, "gear") || strings.Contains(lowered, "rod") ||
		strings.Contains(lowered, "장비") || strings.Contains(lowered, "릴"):
		return "own gear"
	}
	return ""
}

func matchKeyword(lowered string, keywords map[string][]string) string {
	for value, kws := range keywords {
		for _, kw := range kws {
			if strings.Contains(lowered, kw) {
				return value
			}
		}
	}
	return ""
}

func firstInt(pattern *regexp.Regexp, message string) int {
	m := pattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func summarize(plan statex.PlanSnapshot, defaulted []string) []string {
	lines := make([]string, 0, 8)
	if plan.Date != "" {
		lines = append(lines, "Trip date: "+plan.Date)
	}
	if plan.Participants > 0 {
		lines = append(lines, fmt.Sprintf("Participants: %d", plan.Participants))
	}
	if plan.FishingType != "" {
		lines = append(lines, "Fishing type: "+plan.FishingType)
	}
	if plan.Budget != "" {
		lines = append(lines, "Budget: "+plan.Budget)
	}
	if plan.Gear != "" {
		line := "Gear: " + plan.Gear
		for _, f := range defaulted {
			if f == statex.FieldGear {
				line += " (assumed)"
			}
		}
		lines = append(lines, line)
	}
	if plan.Transport != "" {
		lines = append(lines, "Transportation: "+plan.Transport)
	}
	if plan.TargetSpecies != "" {
		lines = append(lines, "Target species: "+plan.TargetSpecies)
	}
	if len(lines) == 0 {
		lines = append(lines, "No new plan details detected.")
	}
	return lines
}
