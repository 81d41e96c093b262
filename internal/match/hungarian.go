package match

import "math"

// hungarian solves the assignment problem on an n×m cost matrix, returning
// for each row the assigned column (or -1). The matrix is padded to square
// internally. Implementation is the classic O(n³) potentials formulation of
// Kuhn–Munkres.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	dim := n
	if m > dim {
		dim = m
	}

	// Pad to a square matrix. Padding cells carry the maximum real cost so
	// any real pairing below the gate-cost ceiling is preferred to leaving
	// a row unassigned; the gate filter still prunes weak pairs afterwards.
	const pad = 1.0
	a := make([][]float64, dim+1)
	for i := range a {
		a[i] = make([]float64, dim+1)
		for j := range a[i] {
			if i >= 1 && i <= n && j >= 1 && j <= m {
				a[i][j] = cost[i-1][j-1]
			} else {
				a[i][j] = pad
			}
		}
	}

	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, dim+1)
		used := make([]bool, dim+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := a[i0][j] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
			if j0 == 0 {
				break
			}
		}
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if i := p[j]; i >= 1 && i <= n && j <= m {
			assign[i-1] = j - 1
		}
	}
	return assign
}
