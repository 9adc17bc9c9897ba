package types

// ProgressFunc receives progress updates from long-running operations
type ProgressFunc func(phase string, current, total int, detail string)

// Progress phases
const (
	PhaseScan    = "scan"
	PhaseExcel   = "excel"
	PhasePDF     = "pdf"
	PhaseStage   = "stage"
	PhaseLoad    = "load"
	PhaseIndex   = "index"
	PhaseDone    = "done"
	PhaseStopped = "stopped"
)

// PhaseFor returns the parser-kind progress phase for a file kind
func PhaseFor(kind FileKind) string {
	if kind == KindPDF {
		return PhasePDF
	}
	return PhaseExcel
}

// Report calls fn if it is non-nil
func (fn ProgressFunc) Report(phase string, current, total int, detail string) {
	if fn != nil {
		fn(phase, current, total, detail)
	}
}
