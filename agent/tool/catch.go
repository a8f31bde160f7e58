package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

// CatchCapability answers availability questions from recent catch
// statistics. Read-only.
type CatchCapability struct{}

func NewCatchCapability() *CatchCapability { return &CatchCapability{} }

func (c *CatchCapability) Name() string  { return statex.ActionCatch }
func (c *CatchCapability) Priority() int { return 20 }

func (c *CatchCapability) AppliesTo(rc contractx.RunContext) bool {
	return rc.ActionRequested(statex.ActionCatch)
}

func (c *CatchCapability) Execute(ctx context.Context, rc contractx.RunContext) (contractx.Output, error) {
	var out contractx.Output

	report, err := rc.Services.CatchStats(ctx)
	if err != nil {
		log.Warn().Err(err).Str("capability", c.Name()).Msg("catch lookup failed")
		out.AddToolResult(failedResult(c.Name(), err, rc.Now))
		return out, nil
	}

	lines := []string{
		fmt.Sprintf("Analysis range: %s", report.AnalysisRange),
		fmt.Sprintf("Total catch: %.1fkg", report.TotalCatchKg),
	}
	if len(report.TopSpecies) > 0 {
		lines = append(lines, "Top species:")
		for i, sp := range report.TopSpecies {
			lines = append(lines, fmt.Sprintf("%d. %s - %.1fkg (%.1f%%)", i+1, sp.Name, sp.CatchKg, sp.Share))
		}
	}
	if report.Summary != "" {
		lines = append(lines, report.Summary)
	}

	// Top species feeds the plan's target species when none was chosen.
	if rc.State.Plan.TargetSpecies == "" && len(report.TopSpecies) > 0 {
		out.AddUpdate(statex.UpdatePlanTargetSpecies, report.TopSpecies[0].Name)
	}

	out.AddToolResult(newToolResult(
		"catch-report",
		c.Name(),
		"Catch analysis",
		strings.Join(lines, "\n"),
		map[string]any{
			"analysisRange": report.AnalysisRange,
			"totalCatchKg":  report.TotalCatchKg,
			"topSpecies":    report.TopSpecies,
			"dataSource":    report.DataSource,
		},
		rc.Now,
	))
	return out, nil
}
