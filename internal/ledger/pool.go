package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"stealth-backend/internal/types"
)

// releasePool is the index of unexecuted releases. Order carries no meaning;
// removal swaps the victim with the last entry and pops.
type releasePool struct {
	ids   []common.Hash
	index map[common.Hash]int
}

func newReleasePool() *releasePool {
	return &releasePool{index: make(map[common.Hash]int)}
}

func (p *releasePool) add(id common.Hash) {
	if _, ok := p.index[id]; ok {
		return
	}
	p.index[id] = len(p.ids)
	p.ids = append(p.ids, id)
}

func (p *releasePool) remove(id common.Hash) bool {
	i, ok := p.index[id]
	if !ok {
		return false
	}
	last := len(p.ids) - 1
	if i != last {
		moved := p.ids[last]
		p.ids[i] = moved
		p.index[moved] = i
	}
	p.ids = p.ids[:last]
	delete(p.index, id)
	return true
}

func (p *releasePool) contains(id common.Hash) bool {
	_, ok := p.index[id]
	return ok
}

func (p *releasePool) len() int {
	return len(p.ids)
}

func (p *releasePool) list() []common.Hash {
	out := make([]common.Hash, len(p.ids))
	copy(out, p.ids)
	return out
}

// ready returns ids whose release time has passed, in pool order.
func (p *releasePool) ready(now uint64, releases map[common.Hash]*types.PendingRelease) []common.Hash {
	var out []common.Hash
	for _, id := range p.ids {
		if releases[id].ReleaseTime <= now {
			out = append(out, id)
		}
	}
	return out
}
