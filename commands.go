package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/haptable/haptable/internal/db"
	"github.com/haptable/haptable/internal/equation"
	"github.com/haptable/haptable/internal/loop"
	"github.com/haptable/haptable/internal/scene"
	"github.com/haptable/haptable/internal/units"
)

// errQuit signals that the operator asked for shutdown.
var errQuit = errors.New("quit")

// commandTimeout caps how long a console command waits on the control
// loop. A held-idle loop (bench mode) never drains mutations, so without
// the cap the console would hang on the first edit.
const commandTimeout = 5 * time.Second

const consoleHelp = `commands:
  add <equation>   add a curve ("add parabola", "add y = x/2 + 40")
  list             list curves
  show <n>         toggle visibility of the nth listed curve
  rm <id>          remove a curve by id
  clear            remove all curves
  x+ / x- [mm]     widen or narrow the x range (default one step)
  z+ / z- [mm]     widen or narrow the z range
  range            show the active ranges
  status           show control loop state
  quit             shut the service down`

// console is the stdin command surface. Scene reads and writes both go
// through loop mutations so the console sees scene state exactly as the
// loop applies it; only Snapshot and the immutable Step are read directly.
type console struct {
	loop    *loop.ControlLoop
	parser  equation.Parser
	coords  *scene.CoordinateSystem
	db      *db.DB
	session string
	units   string
	out     io.Writer
	stop    context.CancelFunc
}

// run reads operator commands until stdin closes or the context ends.
// Lines arrive over a channel so shutdown does not wait on a blocked
// stdin read.
func (c *console) run(ctx context.Context, r io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, `haptable console ready, type "help" for commands`)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.handleCommand(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					fmt.Fprintln(c.out, "shutting down")
					c.stop()
					return
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleCommand dispatches one operator line.
func (c *console) handleCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "add":
		if len(args) == 0 {
			return fmt.Errorf("usage: add <equation>")
		}
		return c.cmdAdd(ctx, strings.Join(args, " "))
	case "list", "ls":
		return c.cmdList(ctx)
	case "show":
		if len(args) != 1 {
			return fmt.Errorf("usage: show <position>")
		}
		pos, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[0])
		}
		return c.cmdToggle(ctx, pos)
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: rm <id>")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid curve id %q", args[0])
		}
		return c.cmdRemove(ctx, id)
	case "clear":
		return c.cmdClear(ctx)
	case "x+", "x-", "z+", "z-":
		return c.cmdAdjust(ctx, cmd, args)
	case "range":
		return c.cmdRange(ctx)
	case "status":
		return c.cmdStatus()
	case "quit", "exit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q, type \"help\" for the list", cmd)
}

// mutate queues m on the control loop and waits for it to apply.
func (c *console) mutate(ctx context.Context, m loop.Mutation) error {
	mctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return c.loop.EnqueueWait(mctx, m)
}

func (c *console) cmdAdd(ctx context.Context, text string) error {
	res, err := c.parser.Parse(ctx, text)
	if err != nil {
		if errors.Is(err, equation.ErrUnparsable) {
			return fmt.Errorf("could not parse %q as an equation", text)
		}
		return err
	}

	var info scene.Info
	err = c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		curve, err := curves.Add(res.Name, res.Display, res.Fn, nil)
		if err != nil {
			return err
		}
		info = curve.Info()
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added curve %d: %s\n", info.ID, info.Display)
	return nil
}

func (c *console) cmdList(ctx context.Context) error {
	var infos []scene.Info
	err := c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		for _, curve := range curves.Curves() {
			infos = append(infos, curve.Info())
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		fmt.Fprintln(c.out, "no curves")
		return nil
	}
	for i, info := range infos {
		marker := " "
		if info.Visible {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%2d. [%s] #%d %s: %s\n", i+1, marker, info.ID, info.Name, info.Display)
	}
	return nil
}

func (c *console) cmdToggle(ctx context.Context, pos int) error {
	var info scene.Info
	err := c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		if !curves.ToggleVisibility(pos) {
			return fmt.Errorf("no curve at position %d", pos)
		}
		info = curves.Curves()[pos-1].Info()
		return nil
	})
	if err != nil {
		return err
	}
	state := "hidden"
	if info.Visible {
		state = "visible"
	}
	fmt.Fprintf(c.out, "curve %d (%s) now %s\n", info.ID, info.Name, state)
	return nil
}

func (c *console) cmdRemove(ctx context.Context, id int) error {
	err := c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		if !curves.Remove(id) {
			return fmt.Errorf("no curve with id %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed curve %d\n", id)
	return nil
}

func (c *console) cmdClear(ctx context.Context) error {
	var cleared int
	err := c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		cleared = curves.Len()
		curves.Clear()
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "cleared %d curves\n", cleared)
	return nil
}

func (c *console) cmdAdjust(ctx context.Context, cmd string, args []string) error {
	delta := c.coords.Step()
	switch len(args) {
	case 0:
	case 1:
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid adjustment %q: want a positive length in mm", args[0])
		}
		delta = v
	default:
		return fmt.Errorf("usage: %s [mm]", cmd)
	}
	axis := string(cmd[0])
	if cmd[1] == '-' {
		delta = -delta
	}

	adj := &db.RangeAdjustment{SessionID: c.session, Axis: axis, DeltaMM: delta}
	var table float64
	err := c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		var err error
		if axis == "x" {
			err = coords.AdjustXRange(delta)
		} else {
			err = coords.AdjustZRange(delta)
		}
		if err != nil {
			return err
		}
		adj.XMin, adj.XMax = coords.XRange()
		adj.ZMin, adj.ZMax = coords.ZRange()
		table = coords.TableHeight()
		return nil
	})
	if err != nil {
		if errors.Is(err, scene.ErrRangeInversion) {
			return fmt.Errorf("adjustment rejected: %w", err)
		}
		return err
	}

	// Recording is best effort; the adjustment itself already happened.
	if c.db != nil && c.session != "" {
		if err := c.db.RecordRangeAdjustment(adj); err != nil {
			log.Printf("[console] record range adjustment: %v", err)
		}
	}

	c.printRange(adj.XMin, adj.XMax, adj.ZMin, adj.ZMax, table)
	return nil
}

func (c *console) cmdRange(ctx context.Context) error {
	var xmin, xmax, zmin, zmax, table float64
	err := c.mutate(ctx, func(coords *scene.CoordinateSystem, curves *scene.CurveSet) error {
		xmin, xmax = coords.XRange()
		zmin, zmax = coords.ZRange()
		table = coords.TableHeight()
		return nil
	})
	if err != nil {
		return err
	}
	c.printRange(xmin, xmax, zmin, zmax, table)
	return nil
}

func (c *console) printRange(xmin, xmax, zmin, zmax, table float64) {
	u := c.units
	fmt.Fprintf(c.out, "x %.1f..%.1f %s, z %.1f..%.1f %s, table height %.1f %s\n",
		units.ConvertLength(xmin, u), units.ConvertLength(xmax, u), u,
		units.ConvertLength(zmin, u), units.ConvertLength(zmax, u), u,
		units.ConvertLength(table, u), u)
}

func (c *console) cmdStatus() error {
	snap := c.loop.Snapshot()
	state := "idle"
	if snap.Running {
		state = "running"
	}
	fmt.Fprintf(c.out, "loop %s, %d cycles, %d motors, %d curves, last state %s\n",
		state, snap.Cycles, snap.MotorCount, len(snap.Curves), snap.Last.State)
	if p := snap.Last.Fingertip; p != nil {
		u := c.units
		fmt.Fprintf(c.out, "fingertip x=%.1f y=%.1f z=%.1f %s\n",
			units.ConvertLength(p.X, u), units.ConvertLength(p.Y, u), units.ConvertLength(p.Z, u), u)
	}
	if len(snap.Last.Levels) > 0 {
		fmt.Fprintf(c.out, "levels %v\n", snap.Last.Levels)
	}
	return nil
}
