// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// DefaultSubmitTimeout bounds how long Frame.Submit waits for the GPU.
const DefaultSubmitTimeout = 5 * time.Second

// ErrSubmitTimeout is returned when a submission does not complete in time.
var ErrSubmitTimeout = errors.New("gpu: timed out waiting for submission")

// Frame is one command encoder's worth of recorded work.
type Frame struct {
	ctx     *Context
	encoder hal.CommandEncoder
	label   string
	done    bool
}

// BeginFrame creates a command encoder and begins encoding.
func (c *Context) BeginFrame(label string) (*Frame, error) {
	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}
	return &Frame{ctx: c, encoder: encoder, label: label}, nil
}

// Encoder returns the encoder to record into.
func (f *Frame) Encoder() hal.CommandEncoder { return f.encoder }

// Submit ends encoding, submits the command buffer and waits until the
// queue reports it complete or timeout passes. A non-positive timeout uses
// DefaultSubmitTimeout.
func (f *Frame) Submit(timeout time.Duration) error {
	if f.done {
		return fmt.Errorf("gpu: frame %q already finished", f.label)
	}
	f.done = true
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}

	cmdBuf, err := f.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer f.ctx.device.FreeCommandBuffer(cmdBuf)

	index, err := f.ctx.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}

	deadline := time.Now().Add(timeout)
	backoff := 50 * time.Microsecond
	for f.ctx.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: index %d after %v", ErrSubmitTimeout, index, timeout)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, 5*time.Millisecond)
	}
	return nil
}

// Discard abandons the recorded commands.
func (f *Frame) Discard() {
	if f.done {
		return
	}
	f.done = true
	f.encoder.DiscardEncoding()
}
