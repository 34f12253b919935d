package scheduling

import (
	"fmt"
	"strings"
	"time"
)

var (
	spanishDays   = [...]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}
	spanishMonths = [...]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep", "oct", "nov", "dic"}
	frenchDays    = [...]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."}
	frenchMonths  = [...]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."}
)

// LabelFor returns a slot label formatter for a session language.
// Unknown languages use English.
func LabelFor(language string) func(time.Time) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	switch lang {
	case "es":
		return func(t time.Time) string {
			return fmt.Sprintf("%s %d %s, %s", spanishDays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Format("15:04"))
		}
	case "fr":
		return func(t time.Time) string {
			return fmt.Sprintf("%s %d %s à %dh%02d", frenchDays[t.Weekday()], t.Day(), frenchMonths[t.Month()-1], t.Hour(), t.Minute())
		}
	default:
		return func(t time.Time) string {
			return t.Format("Mon Jan 2 at 3:04 PM")
		}
	}
}
