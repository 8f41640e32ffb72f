package swarm

import (
	"time"

	"github.com/pthm-cable/army/components"
	"github.com/pthm-cable/army/renderer"
	"github.com/pthm-cable/army/units"
)

// Publisher writes every agent's transform into its render slot.
type Publisher struct {
	r       renderer.Renderer
	table   *units.Table
	touched []bool
	emit    func(pos *components.Position, head *components.Heading, slot *components.RenderSlot)
}

// NewPublisher creates a publisher. A nil renderer makes Publish a no-op.
func NewPublisher(r renderer.Renderer, table *units.Table) *Publisher {
	p := &Publisher{
		r:       r,
		table:   table,
		touched: make([]bool, table.Len()),
	}
	p.emit = p.publishOne
	return p
}

// Publish sends the transforms of all agents in store, marks each touched type
// dirty, then ends the frame if the renderer wants it.
func (p *Publisher) Publish(store *Store, tick uint64, simTime time.Duration) {
	if p.r == nil {
		return
	}
	clear(p.touched)
	store.Each(p.emit)

	for t, ok := range p.touched {
		if ok {
			p.r.MarkDirty(units.TypeID(t))
		}
	}
	if fe, ok := p.r.(renderer.FrameEnder); ok {
		fe.EndFrame(tick, simTime)
	}
}

func (p *Publisher) publishOne(pos *components.Position, head *components.Heading, slot *components.RenderSlot) {
	p.r.SetTransform(slot.Type, int(slot.Index), renderer.Transform{
		Position: pos.Vec,
		Yaw:      head.Yaw,
		Scale:    p.table.Get(slot.Type).Scale,
	})
	p.touched[slot.Type] = true
}
