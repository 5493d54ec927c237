package recommend

import (
	"os"

	"github.com/opspulse/opspulse/pkg/models"
)

// localTemplates are the deterministic fallback templates used when no
// external generator is configured. Variables use ${name} placeholders.
var localTemplates = map[string]string{
	models.TemplateWaiting:    "Hi! Quick nudge from our side: we have been waiting on your input for ${days} days. Could you take a look when you get a chance?",
	models.TemplateScopeCreep: "We have received ${requests_7d} scope-change requests this week. Let's schedule a short call to formalize them as a change request so timeline and budget stay aligned.",
	models.TemplateDelivery:   "Heads up: ${open_blockers} blockers are currently open (average age ${blockers_age} days). We propose an unblocking session to keep ${stage_name} on track.",
	models.TemplateFinance:    "Budget check-in: burn rate is at ${burn_rate} of plan with margin risk ${margin_risk}. Let's review remaining scope against the budget.",
	models.TemplateUpsell:     "Based on the needs raised this week, there may be room to expand the engagement. Happy to put together a short proposal.",
}

// RenderLocal substitutes variables into the fixed per-category template.
// Unknown keys render as an empty string; unknown variables expand to "".
func RenderLocal(key string, vars map[string]string) string {
	template, ok := localTemplates[key]
	if !ok {
		return ""
	}
	return os.Expand(template, func(name string) string {
		return vars[name]
	})
}
