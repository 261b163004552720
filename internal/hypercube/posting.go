package hypercube

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// postingIndex maps dimension index -> value -> record positions.
type postingIndex struct {
	dims [DimensionCount]map[valueKey]*roaring.Bitmap
}

func newPostingIndex() *postingIndex {
	p := &postingIndex{}
	for i := range p.dims {
		p.dims[i] = make(map[valueKey]*roaring.Bitmap)
	}
	return p
}

// add indexes every non-nil coordinate of the record at pos.
func (p *postingIndex) add(pos uint32, coords *Coordinates) {
	for dim, v := range coords {
		key, ok := keyOf(v)
		if !ok {
			continue
		}
		bm, ok := p.dims[dim][key]
		if !ok {
			bm = roaring.New()
			p.dims[dim][key] = bm
		}
		bm.Add(pos)
	}
}

// lookup returns a private copy of the positions holding v in dim.
func (p *postingIndex) lookup(dim int, v any) *roaring.Bitmap {
	key, ok := keyOf(v)
	if !ok {
		return roaring.New()
	}
	bm, ok := p.dims[dim][key]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

// lookupAny unions the posting lists of every candidate value.
func (p *postingIndex) lookupAny(dim int, values []any) *roaring.Bitmap {
	lists := make([]*roaring.Bitmap, 0, len(values))
	for _, v := range values {
		key, ok := keyOf(v)
		if !ok {
			continue
		}
		if bm, ok := p.dims[dim][key]; ok {
			lists = append(lists, bm)
		}
	}
	if len(lists) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(lists...)
}

// size returns the number of distinct indexed values across all dimensions.
func (p *postingIndex) size() int {
	n := 0
	for _, m := range p.dims {
		n += len(m)
	}
	return n
}
