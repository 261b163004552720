package elephant

import "fmt"

// Phase is a lifecycle stage. Memories only move forward, one stage at a time.
type Phase string

const (
	Intake           Phase = "INTAKE"
	TrunkSort        Phase = "TRUNK_SORT"
	HerdConsensus    Phase = "HERD_CONSENSUS"
	MemoryEncode     Phase = "MEMORY_ENCODE"
	GenerationalPass Phase = "GENERATIONAL_PASS"
	EchoAmplify      Phase = "ECHO_AMPLIFY"
)

// TotalPages is the number of page buckets across all phases.
const TotalPages = 46

// Phases lists every phase in lifecycle order.
var Phases = [...]Phase{Intake, TrunkSort, HerdConsensus, MemoryEncode, GenerationalPass, EchoAmplify}

// phasePages holds the inclusive page range owned by each phase, in order.
var phasePages = [...][2]int{
	{1, 8},
	{9, 16},
	{17, 24},
	{25, 32},
	{33, 40},
	{41, 46},
}

// Ordinal returns the position of p in lifecycle order, or -1.
func (p Phase) Ordinal() int {
	for i, q := range Phases {
		if q == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the six phases.
func (p Phase) Valid() bool { return p.Ordinal() >= 0 }

// Pages returns the inclusive page range owned by p.
func (p Phase) Pages() (first, last int) {
	i := p.Ordinal()
	if i < 0 {
		return 0, -1
	}
	return phasePages[i][0], phasePages[i][1]
}

// FirstPage is where memories entering p are placed.
func (p Phase) FirstPage() int {
	first, _ := p.Pages()
	return first
}

// OwnsPage reports whether page lies in p's range.
func (p Phase) OwnsPage(page int) bool {
	first, last := p.Pages()
	return page >= first && page <= last
}

// Previous returns the phase memories are promoted out of to reach p.
func (p Phase) Previous() (Phase, bool) {
	i := p.Ordinal()
	if i <= 0 {
		return "", false
	}
	return Phases[i-1], true
}

// Next returns the phase after p.
func (p Phase) Next() (Phase, bool) {
	i := p.Ordinal()
	if i < 0 || i == len(Phases)-1 {
		return "", false
	}
	return Phases[i+1], true
}

// ParsePhase validates s as a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}
