package proxy

import (
	"fmt"

	"github.com/neuronav/remoteplot/wire"
)

// AddLayer allocates a new rendering layer inside the worker's window and
// returns a plotter for it. The layer shares this plotter's process and
// transport; every message it sends is tagged with the layer key, and the
// shared queue keeps operations across layers totally ordered.
func (p *Plotter) AddLayer(key string) (*Plotter, error) {
	if !p.IsPrimary() {
		return nil, fmt.Errorf("proxy: layers can only be added through the primary plotter")
	}
	if key == "" {
		return nil, fmt.Errorf("proxy: layer key must not be empty")
	}
	if _, exists := p.secondary[key]; exists {
		return nil, fmt.Errorf("proxy: layer %q already exists", key)
	}

	v, err := p.query(wire.KindPlotterCall, wire.PlotterAddLayer, nil, nil,
		map[string]wire.Value{"key": wire.String(key)})
	if err != nil {
		return nil, err
	}
	idx, ok := v.AsInt()
	if !ok {
		return nil, fmt.Errorf("proxy: addLayeredPlotter did not return a layer index")
	}
	log.Infof("layer %q allocated at renderer index %d", key, idx)

	lp := &Plotter{c: p.c, layer: key}
	if p.secondary == nil {
		p.secondary = make(map[string]*Plotter)
	}
	p.secondary[key] = lp
	return lp, nil
}

// Layer returns a previously added secondary plotter.
func (p *Plotter) Layer(key string) (*Plotter, bool) {
	lp, ok := p.secondary[key]
	return lp, ok
}

// LayerKey returns the key this plotter sends with every message; empty on
// the primary surface.
func (p *Plotter) LayerKey() string { return p.layer }
