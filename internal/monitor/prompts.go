package monitor

import "fmt"

// extractorSystemPrompt is the template for the screenshot classifier. The
// remote side enforces no schema; Normalize handles whatever comes back.
const extractorSystemPrompt = `You are DevScope's Smart Extractor keeping a forensic log of engineering work.

USER STATED GOAL: %q
ACTIVE WINDOW: %q - %q
FOCUS BOUNDS: %s

You receive a panoramic screenshot that includes every monitor plus peripheral distractions.
Focus on the active window first, but skim surrounding monitors for supporting clues.

Return a RAW JSON object with this schema:
{
  "task": "string (short label of the task in progress)",
  "app_name": "string (VS Code, Chrome, Terminal, etc.)",
  "activity_type": "CODING | DEBUGGING | RESEARCHING | REVIEWING | COMMUNICATING | TESTING | DESIGN | MONITORING | DEPLOYING | DISTRACTED",
  "technical_context": "Concise extraction of the most precise clue (max 20 words)",
  "alignment_score": "0-100 integer measuring alignment with the stated goal",
  "is_deep_work": boolean,
  "error_code": "exact error code if one is visible, else omit",
  "function_target": "function or class name in view, else omit",
  "documentation_title": "visible docs page title, else omit",
  "doc_url": "visible docs URL, else omit"
}

DATA SCRAPER RULES:
1. If an ERROR or stack trace is visible, extract the exact error code or exception string.
2. If DOCUMENTATION is visible, capture the explicit page title or heading.
3. If CODE is visible, capture the key FUNCTION or CLASS name currently in view.
4. Prefer concrete identifiers (file names, command snippets, API endpoints) over fuzzy prose.
5. If the active window is clearly social media, entertainment, or unrelated browsing, set is_deep_work to false even if other monitors show work apps.

Only return JSON. No commentary, no markdown.`

const extractorUserPrompt = "Describe the active engineering task, IDE/app name, and any visible clues " +
	"like error codes or file names. Output valid JSON only."

func buildExtractorPrompt(goal string, snap WindowSnapshot) string {
	bounds := "Unknown"
	if snap.Bounds != nil {
		bounds = snap.Bounds.String()
	}
	return fmt.Sprintf(extractorSystemPrompt, goal, snap.App, snap.Title, bounds)
}
