package service

import "math"

// costScale 비용을 정수 가중치로 바꿀 때의 해상도
const costScale = 1e6

type weightedEdge struct {
	i, j int
	w    int64
}

// minCostPairs returns the pairs of a matching that first has the largest
// number of finite-cost pairs and then the lowest total cost among those.
// Edges with +Inf cost never appear in the result.
func minCostPairs(cost [][]float64) [][2]int {
	n := len(cost)

	var maxQ int64
	quantized := make(map[[2]int]int64)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !isFinite(cost[i][j]) {
				continue
			}
			q := int64(math.Round(cost[i][j] * costScale))
			quantized[[2]int{i, j}] = q
			if q > maxQ {
				maxQ = q
			}
		}
	}
	if len(quantized) == 0 {
		return nil
	}

	// 모든 가중치가 양수이고 카디널리티가 먼저이므로 합 최대화 = 비용 최소화
	edges := make([]weightedEdge, 0, len(quantized))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			q, ok := quantized[[2]int{i, j}]
			if !ok {
				continue
			}
			edges = append(edges, weightedEdge{i: i, j: j, w: 2 * (maxQ + 1 - q)})
		}
	}

	mate := maxWeightMatching(n, edges)
	var pairs [][2]int
	for i, j := range mate {
		if j > i {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

func isFinite(c float64) bool {
	return !math.IsInf(c, 0) && !math.IsNaN(c)
}

// maxWeightMatching is Edmonds' blossom algorithm with dual variables
// (O(n³)). Among all maximum-cardinality matchings it returns one of
// maximum total weight. mate[v] is v's partner or -1.
func maxWeightMatching(n int, edges []weightedEdge) []int {
	mate := make([]int, n)
	for i := range mate {
		mate[i] = -1
	}
	if n == 0 || len(edges) == 0 {
		return mate
	}

	s := newBlossomState(n, edges)
	s.solve()

	for v := 0; v < n; v++ {
		if s.mate[v] >= 0 {
			mate[v] = s.endpoint[s.mate[v]]
		}
	}
	return mate
}

// blossomState 정점 0..n-1, 블로섬 n..2n-1.
// label: 0 없음, 1 S, 2 T. 끝점 p 는 간선 p/2 의 한쪽 끝.
type blossomState struct {
	n     int
	edges []weightedEdge

	endpoint  []int
	neighbend [][]int

	mate             []int
	label            []int
	labelend         []int
	inblossom        []int
	blossomparent    []int
	blossomchilds    [][]int
	blossombase      []int
	blossomendps     [][]int
	bestedge         []int
	blossombestedges [][]int
	unusedblossoms   []int
	dualvar          []int64
	allowedge        []bool
	queue            []int
}

func newBlossomState(n int, edges []weightedEdge) *blossomState {
	s := &blossomState{
		n:                n,
		edges:            edges,
		endpoint:         make([]int, 2*len(edges)),
		neighbend:        make([][]int, n),
		mate:             filled(n, -1),
		label:            make([]int, 2*n),
		labelend:         filled(2*n, -1),
		inblossom:        make([]int, n),
		blossomparent:    filled(2*n, -1),
		blossomchilds:    make([][]int, 2*n),
		blossombase:      filled(2*n, -1),
		blossomendps:     make([][]int, 2*n),
		bestedge:         filled(2*n, -1),
		blossombestedges: make([][]int, 2*n),
		dualvar:          make([]int64, 2*n),
		allowedge:        make([]bool, len(edges)),
	}

	var maxWeight int64
	for k, e := range edges {
		s.endpoint[2*k] = e.i
		s.endpoint[2*k+1] = e.j
		s.neighbend[e.i] = append(s.neighbend[e.i], 2*k+1)
		s.neighbend[e.j] = append(s.neighbend[e.j], 2*k)
		if e.w > maxWeight {
			maxWeight = e.w
		}
	}
	for v := 0; v < n; v++ {
		s.inblossom[v] = v
		s.blossombase[v] = v
		s.dualvar[v] = maxWeight
	}
	for b := n; b < 2*n; b++ {
		s.unusedblossoms = append(s.unusedblossoms, b)
	}
	return s
}

func filled(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (s *blossomState) slack(k int) int64 {
	e := s.edges[k]
	return s.dualvar[e.i] + s.dualvar[e.j] - 2*e.w
}

func (s *blossomState) leaves(b int, out []int) []int {
	if b < s.n {
		return append(out, b)
	}
	for _, t := range s.blossomchilds[b] {
		if t < s.n {
			out = append(out, t)
		} else {
			out = s.leaves(t, out)
		}
	}
	return out
}

func (s *blossomState) assignLabel(w, t, p int) {
	b := s.inblossom[w]
	s.label[w], s.label[b] = t, t
	s.labelend[w], s.labelend[b] = p, p
	s.bestedge[w], s.bestedge[b] = -1, -1
	switch t {
	case 1:
		s.queue = s.leaves(b, s.queue)
	case 2:
		base := s.blossombase[b]
		s.assignLabel(s.endpoint[s.mate[base]], 1, s.mate[base]^1)
	}
}

// scanBlossom 두 S 정점에서 거슬러 올라가 공통 base 를 찾는다. 없으면 -1 (증가 경로).
func (s *blossomState) scanBlossom(v, w int) int {
	var path []int
	base := -1
	for v != -1 || w != -1 {
		b := s.inblossom[v]
		if s.label[b]&4 != 0 {
			base = s.blossombase[b]
			break
		}
		path = append(path, b)
		s.label[b] = 5
		if s.labelend[b] == -1 {
			v = -1
		} else {
			v = s.endpoint[s.labelend[b]]
			b = s.inblossom[v]
			v = s.endpoint[s.labelend[b]]
		}
		if w != -1 {
			v, w = w, v
		}
	}
	for _, b := range path {
		s.label[b] = 1
	}
	return base
}

func (s *blossomState) addBlossom(base, k int) {
	v, w := s.edges[k].i, s.edges[k].j
	bb := s.inblossom[base]
	bv := s.inblossom[v]
	bw := s.inblossom[w]

	b := s.unusedblossoms[len(s.unusedblossoms)-1]
	s.unusedblossoms = s.unusedblossoms[:len(s.unusedblossoms)-1]
	s.blossombase[b] = base
	s.blossomparent[b] = -1
	s.blossomparent[bb] = b

	var path, endps []int
	for bv != bb {
		s.blossomparent[bv] = b
		path = append(path, bv)
		endps = append(endps, s.labelend[bv])
		v = s.endpoint[s.labelend[bv]]
		bv = s.inblossom[v]
	}
	path = append(path, bb)
	reverseInts(path)
	reverseInts(endps)
	endps = append(endps, 2*k)
	for bw != bb {
		s.blossomparent[bw] = b
		path = append(path, bw)
		endps = append(endps, s.labelend[bw]^1)
		w = s.endpoint[s.labelend[bw]]
		bw = s.inblossom[w]
	}
	s.blossomchilds[b] = path
	s.blossomendps[b] = endps

	s.label[b] = 1
	s.labelend[b] = s.labelend[bb]
	s.dualvar[b] = 0
	for _, leaf := range s.leaves(b, nil) {
		if s.label[s.inblossom[leaf]] == 2 {
			s.queue = append(s.queue, leaf)
		}
		s.inblossom[leaf] = b
	}

	// 새 블로섬에서 이웃 S 블로섬으로 가는 최소 slack 간선
	bestedgeto := filled(2*s.n, -1)
	for _, sub := range path {
		var nblists [][]int
		if s.blossombestedges[sub] == nil {
			for _, leaf := range s.leaves(sub, nil) {
				list := make([]int, 0, len(s.neighbend[leaf]))
				for _, p := range s.neighbend[leaf] {
					list = append(list, p/2)
				}
				nblists = append(nblists, list)
			}
		} else {
			nblists = [][]int{s.blossombestedges[sub]}
		}
		for _, nblist := range nblists {
			for _, ek := range nblist {
				j := s.edges[ek].j
				if s.inblossom[j] == b {
					j = s.edges[ek].i
				}
				bj := s.inblossom[j]
				if bj != b && s.label[bj] == 1 &&
					(bestedgeto[bj] == -1 || s.slack(ek) < s.slack(bestedgeto[bj])) {
					bestedgeto[bj] = ek
				}
			}
		}
		s.blossombestedges[sub] = nil
		s.bestedge[sub] = -1
	}

	best := make([]int, 0)
	for _, ek := range bestedgeto {
		if ek != -1 {
			best = append(best, ek)
		}
	}
	s.blossombestedges[b] = best
	s.bestedge[b] = -1
	for _, ek := range best {
		if s.bestedge[b] == -1 || s.slack(ek) < s.slack(s.bestedge[b]) {
			s.bestedge[b] = ek
		}
	}
}

func (s *blossomState) expandBlossom(b int, endstage bool) {
	for _, sub := range s.blossomchilds[b] {
		s.blossomparent[sub] = -1
		switch {
		case sub < s.n:
			s.inblossom[sub] = sub
		case endstage && s.dualvar[sub] == 0:
			s.expandBlossom(sub, endstage)
		default:
			for _, leaf := range s.leaves(sub, nil) {
				s.inblossom[leaf] = sub
			}
		}
	}

	if !endstage && s.label[b] == 2 {
		childs := s.blossomchilds[b]
		endps := s.blossomendps[b]
		at := wrapIndex(len(childs))

		entrychild := s.inblossom[s.endpoint[s.labelend[b]^1]]
		j := indexOf(childs, entrychild)
		jstep, endptrick := -1, 1
		if j&1 != 0 {
			j -= len(childs)
			jstep, endptrick = 1, 0
		}

		// entry 에서 base 까지 T 레이블을 다시 붙인다
		p := s.labelend[b]
		for j != 0 {
			s.label[s.endpoint[p^1]] = 0
			s.label[s.endpoint[endps[at(j-endptrick)]^endptrick^1]] = 0
			s.assignLabel(s.endpoint[p^1], 2, p)
			s.allowedge[endps[at(j-endptrick)]/2] = true
			j += jstep
			p = endps[at(j-endptrick)] ^ endptrick
			s.allowedge[p/2] = true
			j += jstep
		}

		bv := childs[at(j)]
		s.label[s.endpoint[p^1]], s.label[bv] = 2, 2
		s.labelend[s.endpoint[p^1]], s.labelend[bv] = p, p
		s.bestedge[bv] = -1
		j += jstep

		for childs[at(j)] != entrychild {
			bv = childs[at(j)]
			if s.label[bv] == 1 {
				j += jstep
				continue
			}
			reached := -1
			for _, leaf := range s.leaves(bv, nil) {
				if s.label[leaf] != 0 {
					reached = leaf
					break
				}
			}
			if reached >= 0 {
				s.label[reached] = 0
				s.label[s.endpoint[s.mate[s.blossombase[bv]]]] = 0
				s.assignLabel(reached, 2, s.labelend[reached])
			}
			j += jstep
		}
	}

	s.label[b], s.labelend[b] = -1, -1
	s.blossomchilds[b], s.blossomendps[b] = nil, nil
	s.blossombase[b] = -1
	s.blossombestedges[b] = nil
	s.bestedge[b] = -1
	s.unusedblossoms = append(s.unusedblossoms, b)
}

// augmentBlossom 블로섬 b 안에서 v 가 base 가 되도록 매칭을 뒤집는다
func (s *blossomState) augmentBlossom(b, v int) {
	t := v
	for s.blossomparent[t] != b {
		t = s.blossomparent[t]
	}
	if t >= s.n {
		s.augmentBlossom(t, v)
	}

	childs := s.blossomchilds[b]
	endps := s.blossomendps[b]
	at := wrapIndex(len(childs))

	i := indexOf(childs, t)
	j := i
	jstep, endptrick := -1, 1
	if i&1 != 0 {
		j -= len(childs)
		jstep, endptrick = 1, 0
	}
	for j != 0 {
		j += jstep
		t = childs[at(j)]
		p := endps[at(j-endptrick)] ^ endptrick
		if t >= s.n {
			s.augmentBlossom(t, s.endpoint[p])
		}
		j += jstep
		t = childs[at(j)]
		if t >= s.n {
			s.augmentBlossom(t, s.endpoint[p^1])
		}
		s.mate[s.endpoint[p]] = p ^ 1
		s.mate[s.endpoint[p^1]] = p
	}

	s.blossomchilds[b] = rotateInts(childs, i)
	s.blossomendps[b] = rotateInts(endps, i)
	s.blossombase[b] = s.blossombase[s.blossomchilds[b][0]]
}

func (s *blossomState) augmentMatching(k int) {
	e := s.edges[k]
	for _, start := range [2][2]int{{e.i, 2*k + 1}, {e.j, 2 * k}} {
		v, p := start[0], start[1]
		for {
			bs := s.inblossom[v]
			if bs >= s.n {
				s.augmentBlossom(bs, v)
			}
			s.mate[v] = p
			if s.labelend[bs] == -1 {
				break
			}
			t := s.endpoint[s.labelend[bs]]
			bt := s.inblossom[t]
			v = s.endpoint[s.labelend[bt]]
			j := s.endpoint[s.labelend[bt]^1]
			if bt >= s.n {
				s.augmentBlossom(bt, j)
			}
			s.mate[j] = s.labelend[bt]
			p = s.labelend[bt] ^ 1
		}
	}
}

func (s *blossomState) solve() {
	n := s.n
	for stage := 0; stage < n; stage++ {
		for i := range s.label {
			s.label[i] = 0
			s.bestedge[i] = -1
		}
		for b := n; b < 2*n; b++ {
			s.blossombestedges[b] = nil
		}
		for k := range s.allowedge {
			s.allowedge[k] = false
		}
		s.queue = s.queue[:0]

		for v := 0; v < n; v++ {
			if s.mate[v] == -1 && s.label[s.inblossom[v]] == 0 {
				s.assignLabel(v, 1, -1)
			}
		}

		augmented := false
		for {
			for len(s.queue) > 0 && !augmented {
				v := s.queue[len(s.queue)-1]
				s.queue = s.queue[:len(s.queue)-1]

				for _, p := range s.neighbend[v] {
					k := p / 2
					w := s.endpoint[p]
					if s.inblossom[v] == s.inblossom[w] {
						continue
					}
					var kslack int64
					if !s.allowedge[k] {
						kslack = s.slack(k)
						if kslack <= 0 {
							s.allowedge[k] = true
						}
					}
					switch {
					case s.allowedge[k]:
						switch {
						case s.label[s.inblossom[w]] == 0:
							s.assignLabel(w, 2, p^1)
						case s.label[s.inblossom[w]] == 1:
							if base := s.scanBlossom(v, w); base >= 0 {
								s.addBlossom(base, k)
							} else {
								s.augmentMatching(k)
								augmented = true
							}
						case s.label[w] == 0:
							s.label[w] = 2
							s.labelend[w] = p ^ 1
						}
					case s.label[s.inblossom[w]] == 1:
						b := s.inblossom[v]
						if s.bestedge[b] == -1 || kslack < s.slack(s.bestedge[b]) {
							s.bestedge[b] = k
						}
					case s.label[w] == 0:
						if s.bestedge[w] == -1 || kslack < s.slack(s.bestedge[w]) {
							s.bestedge[w] = k
						}
					}
					if augmented {
						break
					}
				}
			}
			if augmented {
				break
			}

			// 쌍대 변수 조정량. 1: 종료, 2: S-자유 간선, 3: S-S 간선, 4: T 블로섬 확장
			deltatype := -1
			var delta int64
			deltaedge, deltablossom := -1, -1

			for v := 0; v < n; v++ {
				if s.label[s.inblossom[v]] == 0 && s.bestedge[v] != -1 {
					if d := s.slack(s.bestedge[v]); deltatype == -1 || d < delta {
						delta, deltatype, deltaedge = d, 2, s.bestedge[v]
					}
				}
			}
			for b := 0; b < 2*n; b++ {
				if s.blossomparent[b] == -1 && s.label[b] == 1 && s.bestedge[b] != -1 {
					if d := s.slack(s.bestedge[b]) / 2; deltatype == -1 || d < delta {
						delta, deltatype, deltaedge = d, 3, s.bestedge[b]
					}
				}
			}
			for b := n; b < 2*n; b++ {
				if s.blossombase[b] >= 0 && s.blossomparent[b] == -1 && s.label[b] == 2 &&
					(deltatype == -1 || s.dualvar[b] < delta) {
					delta, deltatype, deltablossom = s.dualvar[b], 4, b
				}
			}
			if deltatype == -1 {
				// 더 이상 증가 경로 없음
				deltatype = 1
				delta = s.dualvar[0]
				for v := 1; v < n; v++ {
					if s.dualvar[v] < delta {
						delta = s.dualvar[v]
					}
				}
				if delta < 0 {
					delta = 0
				}
			}

			for v := 0; v < n; v++ {
				switch s.label[s.inblossom[v]] {
				case 1:
					s.dualvar[v] -= delta
				case 2:
					s.dualvar[v] += delta
				}
			}
			for b := n; b < 2*n; b++ {
				if s.blossombase[b] >= 0 && s.blossomparent[b] == -1 {
					switch s.label[b] {
					case 1:
						s.dualvar[b] += delta
					case 2:
						s.dualvar[b] -= delta
					}
				}
			}

			switch deltatype {
			case 2:
				s.allowedge[deltaedge] = true
				i, j := s.edges[deltaedge].i, s.edges[deltaedge].j
				if s.label[s.inblossom[i]] == 0 {
					i = j
				}
				s.queue = append(s.queue, i)
			case 3:
				s.allowedge[deltaedge] = true
				s.queue = append(s.queue, s.edges[deltaedge].i)
			case 4:
				s.expandBlossom(deltablossom, false)
			}
			if deltatype == 1 {
				break
			}
		}

		if !augmented {
			break
		}

		// dual 이 0 인 최상위 S 블로섬은 다음 단계 전에 푼다
		for b := n; b < 2*n; b++ {
			if s.blossomparent[b] == -1 && s.blossombase[b] >= 0 &&
				s.label[b] == 1 && s.dualvar[b] == 0 {
				s.expandBlossom(b, true)
			}
		}
	}
}

func wrapIndex(size int) func(int) int {
	return func(j int) int {
		return ((j % size) + size) % size
	}
}

func indexOf(xs []int, x int) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

func reverseInts(xs []int) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

func rotateInts(xs []int, i int) []int {
	out := make([]int, 0, len(xs))
	out = append(out, xs[i:]...)
	return append(out, xs[:i]...)
}
