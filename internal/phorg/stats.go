package phorg

import "fmt"

// Stats accumulates per-run outcome counts. Operations return it by value;
// there is no process-wide counter state.
type Stats struct {
	Scanned  int
	Imported int
	Existed  int
	Ignored  int
	Deleted  int
	Errored  int
}

// Summary renders the end-of-run line printed and logged after every command.
func (s Stats) Summary() string {
	return fmt.Sprintf("scanned=%d imported=%d existed=%d ignored=%d deleted=%d errored=%d",
		s.Scanned, s.Imported, s.Existed, s.Ignored, s.Deleted, s.Errored)
}
