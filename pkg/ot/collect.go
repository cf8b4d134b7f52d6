package ot

import "fmt"

// ListCollector folds a chronological run of list operations into one.
//
// A list operation's neutral element depends on the length it applies to, so
// an empty collector has no result rather than an empty operation.
type ListCollector[S Sequence[S]] struct {
	result *ListOp[S]
	n      int
}

// Add composes op onto the collected result. op must apply against the
// length the previous operations produce.
func (c *ListCollector[S]) Add(op *ListOp[S]) error {
	if c.result == nil {
		c.result = op
		c.n++
		return nil
	}
	if c.result.targetLen != op.baseLen {
		return composeErrorf("operation %d expects base length %d, previous operations produce %d", c.n, op.baseLen, c.result.targetLen)
	}
	composed, err := ComposeLists(c.result, op)
	if err != nil {
		return fmt.Errorf("operation %d: %w", c.n, err)
	}
	c.result = composed
	c.n++
	return nil
}

// Result returns the composed operation, or false if nothing was added.
func (c *ListCollector[S]) Result() (*ListOp[S], bool) {
	return c.result, c.result != nil
}

// CollectLists composes ops in order. It returns nil for an empty input.
func CollectLists[S Sequence[S]](ops ...*ListOp[S]) (*ListOp[S], error) {
	var c ListCollector[S]
	for _, op := range ops {
		if err := c.Add(op); err != nil {
			return nil, err
		}
	}
	op, _ := c.Result()
	return op, nil
}
