package server

import (
	"context"
	"errors"
	"fmt"

	"mazearena/maze"
	"mazearena/protocol"
)

// Game 一局的迷宫与配色，创建后只读
type Game struct {
	Maze          [][]uint8
	PlayerColours []protocol.Colour
	MapColours    []protocol.Colour
	Starts        [4]protocol.Position
}

// GameFactory 迷宫生成器的接入点
type GameFactory interface {
	NewGame(ctx context.Context) (*Game, error)
}

func (g *Game) Width() int  { return len(g.Maze[0]) }
func (g *Game) Height() int { return len(g.Maze) }

// cell 越界返回 false
func (g *Game) cell(x, y int) (uint8, bool) {
	if y < 0 || y >= len(g.Maze) || x < 0 || x >= len(g.Maze[y]) {
		return 0, false
	}
	return g.Maze[y][x], true
}

func (g *Game) Info() protocol.GameInfo {
	return protocol.GameInfo{
		Map:             g.Maze,
		PlayerColours:   g.PlayerColours,
		MapColours:      g.MapColours,
		PlayerPositions: g.Starts[:],
	}
}

// NewGame 校验网格并按尺寸计算出生点
func NewGame(grid [][]uint8, playerColours, mapColours []protocol.Colour) (*Game, error) {
	if len(grid) < 3 || len(grid[0]) < 3 {
		return nil, errors.New("maze must be at least 3x3")
	}
	w := len(grid[0])
	for y, row := range grid {
		if len(row) != w {
			return nil, fmt.Errorf("maze row %d has width %d, want %d", y, len(row), w)
		}
	}
	g := &Game{
		Maze:          grid,
		PlayerColours: playerColours,
		MapColours:    mapColours,
		Starts:        maze.Starts(w, len(grid)),
	}
	for i, s := range g.Starts {
		if c, _ := g.cell(int(s.X), int(s.Y)); c == maze.Wall {
			return nil, fmt.Errorf("start %d at (%d,%d) is a wall", i, s.X, s.Y)
		}
	}
	return g, nil
}

// MazeGames 用 maze.Generator 生成对局
type MazeGames struct {
	Gen *maze.Generator
}

func (m MazeGames) NewGame(ctx context.Context) (*Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grid := m.Gen.Generate()
	return NewGame(grid, m.Gen.Palette(MaxPlayers), m.Gen.Palette(maze.Distinct(grid)))
}
