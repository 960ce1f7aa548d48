package engine

import "strings"

// Intent categories recognized from caller utterances. Keyword
// matching keeps intent tagging on the fast path; anything subtler is
// left to the reasoning model.
const (
	IntentAppointment = "appointment"
	IntentSupport     = "support"
	IntentInformation = "information"
	IntentCancel      = "cancel"
	IntentReschedule  = "reschedule"
	IntentGreeting    = "greeting"
	IntentGoodbye     = "goodbye"
)

// intentPatterns are checked in order; on tied scores the earlier
// entry wins, so the match is deterministic.
var intentPatterns = []struct {
	intent   string
	keywords []string
}{
	{IntentAppointment, []string{"appointment", "schedule", "book", "meeting", "available", "termin", "buchung", "vereinbaren"}},
	{IntentSupport, []string{"problem", "help", "issue", "broken", "error", "not working", "hilfe", "kaputt", "fehler"}},
	{IntentInformation, []string{"information", "hours", "price", "cost", "where", "address", "öffnungszeiten", "preis", "adresse"}},
	{IntentCancel, []string{"cancel", "cancellation", "abort", "absagen", "stornieren", "abbrechen"}},
	{IntentReschedule, []string{"reschedule", "move", "different time", "verschieben", "umbuchen", "andere zeit"}},
	{IntentGreeting, []string{"hello", "hi", "good morning", "good day", "hallo", "guten tag", "servus"}},
	{IntentGoodbye, []string{"bye", "goodbye", "thank you", "thanks", "tschüss", "auf wiederhören", "danke"}},
}

// DetectIntent returns the best-matching intent for an utterance, or
// "" when nothing matches. Scoring is the fraction of an intent's
// keywords present in the text.
func DetectIntent(text string) string {
	lower := strings.ToLower(text)

	best := ""
	bestScore := 0.0
	for _, p := range intentPatterns {
		matches := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(p.keywords))
		if score > bestScore {
			bestScore = score
			best = p.intent
		}
	}
	return best
}
