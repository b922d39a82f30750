package engine

import (
	"fmt"
	"math/rand"
)

// Direction names one of the three traversal orders the CLI's --dir
// flag selects.
type Direction string

const (
	DirForward  Direction = "fwd"
	DirBackward Direction = "bwd"
	DirRandom   Direction = "rnd"
)

// BuildTargets returns the ordered target list for numObjs objects
// named obj.0 .. obj.{numObjs-1}. The "fwd" name is historical: in
// run-query.cc the list is built ascending, reversed, then dispatched
// by popping from the back, so the net dispatch order for "fwd" is
// ascending — this function skips the reverse-then-pop-back dance and
// returns the dispatch order directly, since the dispatcher here
// simply pops from the front of whatever order it is handed.
func BuildTargets(numObjs int, dir Direction, rng *rand.Rand) ([]string, error) {
	if numObjs <= 0 {
		return nil, fmt.Errorf("engine: num-objs must be positive, got %d", numObjs)
	}

	targets := make([]string, numObjs)
	for i := 0; i < numObjs; i++ {
		targets[i] = fmt.Sprintf("obj.%d", i)
	}

	switch dir {
	case DirForward, "":
		return targets, nil
	case DirBackward:
		reversed := make([]string, numObjs)
		for i, oid := range targets {
			reversed[numObjs-1-i] = oid
		}
		return reversed, nil
	case DirRandom:
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		rng.Shuffle(len(targets), func(i, j int) { targets[i], targets[j] = targets[j], targets[i] })
		return targets, nil
	default:
		return nil, fmt.Errorf("engine: unknown --dir %q, want one of fwd, bwd, rnd", dir)
	}
}
