// Copyright (C) 2024  The paratreet-ng Authors
//
// SPDX-License-Identifier: GPL-2.0-or-later

package tree

import (
	"fmt"

	"git.lukeshu.com/paratreet-ng/lib/particle"
	"git.lukeshu.com/paratreet-ng/lib/ptkey"
)

// BuildSFC is the SFC-decomposition counterpart to Build: rather than
// addressing a single pre-assigned tp_key, every TreePiece holds an
// equal-sized ordinal slice of the globally-sorted particle array and
// classifies each candidate child as Shared (spans more than one
// TreePiece's slice, keep descending), Local (wholly within this
// TreePiece's slice), or Remote (wholly outside it). This mirrors the
// original's SFC_DECOMP branch of TreePiece::build, which the original
// itself leaves partial (its tp_key assignment is a documented TODO).
// That gap is preserved here: BuildSFC only supports the initial build
// (iteration 0); a rebuild after particles have crossed ordinal
// boundaries would need a re-derived tp_key per TreePiece, which isn't
// implemented.
func BuildSFC[Data any](particles []particle.Particle, tpOrdinalStart, tpOrdinalEnd, totalParticles int, iteration int) (*Node[Data], error) {
	if iteration > 0 {
		return nil, fmt.Errorf("SFC decomposition: rebuild not implemented for iteration %d", iteration)
	}

	root := &Node[Data]{Key: ptkey.Root, Start: 0, N: len(particles), Type: Shared}
	type queued struct {
		node                     *Node[Data]
		ordinalStart, ordinalEnd int // this node's slice of the global ordinal space
	}
	queue := []queued{{node: root, ordinalStart: 0, ordinalEnd: totalParticles}}

	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]

		childSpan := (q.ordinalEnd - q.ordinalStart + 7) / 8
		childStart := q.ordinalStart
		for c := 0; c < 8; c++ {
			childEnd := childStart + childSpan
			if c == 7 || childEnd > q.ordinalEnd {
				childEnd = q.ordinalEnd
			}

			child := &Node[Data]{Key: q.node.Key.Child(c), Depth: q.node.Depth + 1, Parent: q.node}
			switch {
			case childEnd <= tpOrdinalStart || childStart >= tpOrdinalEnd:
				child.Type = Remote
			case childStart >= tpOrdinalStart && childEnd <= tpOrdinalEnd:
				child.Type = Local
			default:
				child.Type = Shared
			}
			q.node.Children[c] = child

			if child.Type == Shared {
				queue = append(queue, queued{node: child, ordinalStart: childStart, ordinalEnd: childEnd})
			}
			childStart = childEnd
		}
	}
	return root, nil
}
