// Package maze 生成对称迷宫：回溯法生成一个象限，镜像成四个象限，中心为终点。
package maze

import (
	"math"
	"math/rand/v2"
	"sync"

	"mazearena/protocol"
)

// 格子取值
const (
	Open uint8 = 0
	Wall uint8 = 1
	Goal uint8 = 2
)

// Generator 可被多个 goroutine 共享
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rows int // 象限格子行数，0 表示每次随机
	cols int
}

type Option func(*Generator)

// WithQuadrant 固定象限大小（格子数，不是网格数）
func WithQuadrant(rows, cols int) Option {
	return func(g *Generator) {
		g.rows = rows
		g.cols = cols
	}
}

// WithRand 注入随机源，测试时用固定种子
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = r
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// Generate 返回 grid[y][x]，边界全是墙，正中心为 Goal，
// 四个角内侧 (1,1) (w-2,1) (1,h-2) (w-2,h-2) 保证可走。
func (g *Generator) Generate() [][]uint8 {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows, cols := g.rows, g.cols
	if rows <= 0 {
		rows = 4 + g.rng.IntN(4)
	}
	if cols <= 0 {
		cols = 3 + g.rng.IntN(4)
	}
	if rows < 2 {
		rows = 2
	}
	if cols < 2 {
		cols = 2
	}

	q := g.carve(rows, cols)
	// 去掉首行与末列后镜像
	q = q[1:]
	for i := range q {
		q[i] = q[i][:len(q[i])-1]
	}
	qh, qw := len(q), len(q[0])

	fullH, fullW := 2*qh, 2*qw
	out := make([][]uint8, 0, fullH-1)
	for y := 0; y < fullH; y++ {
		if y == qh {
			continue
		}
		row := make([]uint8, 0, fullW-1)
		for x := 0; x < fullW; x++ {
			if x == qw {
				continue
			}
			sy, sx := y, x
			if y < qh {
				sy = qh - 1 - y
			} else {
				sy = y - qh
			}
			if x >= qw {
				sx = qw - 1 - (x - qw)
			}
			row = append(row, q[sy][sx])
		}
		out = append(out, row)
	}

	h, w := len(out), len(out[0])
	out[h/2][w/2] = Goal
	for _, p := range Starts(w, h) {
		out[p.Y][p.X] = Open
	}
	return out
}

// carve 在 rows×cols 格子上做迭代回溯，返回 (2rows+1)×(2cols+1) 的网格
func (g *Generator) carve(rows, cols int) [][]uint8 {
	h, w := 2*rows+1, 2*cols+1
	grid := make([][]uint8, h)
	for y := range grid {
		grid[y] = make([]uint8, w)
		for x := range grid[y] {
			grid[y][x] = Wall
		}
	}

	type cell struct{ r, c int }
	visited := make([][]bool, rows)
	for i := range visited {
		visited[i] = make([]bool, cols)
	}
	dirs := []cell{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

	stack := []cell{{0, 0}}
	visited[0][0] = true
	grid[1][1] = Open
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		g.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
		moved := false
		for _, d := range dirs {
			nr, nc := cur.r+d.r, cur.c+d.c
			if nr < 0 || nr >= rows || nc < 0 || nc >= cols || visited[nr][nc] {
				continue
			}
			visited[nr][nc] = true
			grid[2*cur.r+1+d.r][2*cur.c+1+d.c] = Open
			grid[2*nr+1][2*nc+1] = Open
			stack = append(stack, cell{nr, nc})
			moved = true
			break
		}
		if !moved {
			stack = stack[:len(stack)-1]
		}
	}
	return grid
}

// Starts 四个角内侧的出生点，顺序固定
func Starts(width, height int) [4]protocol.Position {
	return [4]protocol.Position{
		{X: 1, Y: 1},
		{X: uint16(width - 2), Y: 1},
		{X: 1, Y: uint16(height - 2)},
		{X: uint16(width - 2), Y: uint16(height - 2)},
	}
}

// Distinct 统计网格中出现的不同格子值
func Distinct(grid [][]uint8) int {
	var seen [256]bool
	n := 0
	for _, row := range grid {
		for _, v := range row {
			if !seen[v] {
				seen[v] = true
				n++
			}
		}
	}
	return n
}

// Palette 从随机起始色相出发，均匀取 n 个颜色
func (g *Generator) Palette(n int) []protocol.Colour {
	g.mu.Lock()
	start := g.rng.Float64()
	g.mu.Unlock()

	out := make([]protocol.Colour, 0, n)
	for i := 0; i < n; i++ {
		hue := math.Mod(start+float64(i)/float64(n), 1.0)
		out = append(out, hsv(hue, 0.65, 0.9))
	}
	return out
}

func hsv(h, s, v float64) protocol.Colour {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return protocol.Colour{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255)}
}
