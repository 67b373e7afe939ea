package rounds

// Phase é o estado de um round. Só avança, nunca volta.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseVoting     Phase = "voting"
	PhaseFinalized  Phase = "finalized"
	PhaseSettled    Phase = "settled"
)

// next mapeia cada fase para a seguinte. Settled é terminal.
var next = map[Phase]Phase{
	PhaseCollecting: PhaseVoting,
	PhaseVoting:     PhaseFinalized,
	PhaseFinalized:  PhaseSettled,
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseCollecting, PhaseVoting, PhaseFinalized, PhaseSettled:
		return true
	}
	return false
}

// CanAdvance diz se a transição from->to existe na máquina de estados.
// Nenhuma fase é pulada e não há transição de volta.
func CanAdvance(from, to Phase) bool {
	return next[from] == to
}
