package room

import "time"

// Every timer carries the generation it was armed with. A fire whose
// generation no longer matches was cancelled or re-armed after it had
// already been queued, and is dropped.

func (r *Room) arm(after time.Duration, fire func(gen uint64) Msg) *pendingTimer {
	r.gen++
	gen := r.gen
	return &pendingTimer{gen: gen, t: time.AfterFunc(after, func() { r.post(fire(gen)) })}
}

func (r *Room) schedule(name string, after time.Duration) {
	r.stopTimer(name)
	r.timers[name] = r.arm(after, func(gen uint64) Msg { return timerFired{name: name, gen: gen} })
}

func (r *Room) stopTimer(name string) {
	if pt, ok := r.timers[name]; ok {
		pt.t.Stop()
		delete(r.timers, name)
	}
}

func (r *Room) stopAllTimers() {
	for name := range r.timers {
		r.stopTimer(name)
	}
}

func (r *Room) fire(msg timerFired) {
	pt, ok := r.timers[msg.name]
	if !ok || pt.gen != msg.gen {
		return
	}
	delete(r.timers, msg.name)
	r.tick(msg.name)
}

func (r *Room) startGrace(playerID string) {
	r.stopGrace(playerID)
	r.graces[playerID] = r.arm(r.cfg.ReconnectGrace, func(gen uint64) Msg {
		return graceExpired{playerID: playerID, gen: gen}
	})
}

func (r *Room) stopGrace(playerID string) {
	if pt, ok := r.graces[playerID]; ok {
		pt.t.Stop()
		delete(r.graces, playerID)
	}
}

func (r *Room) startHostGrace() {
	r.stopHostGrace()
	r.hostGrace = r.arm(r.cfg.HostGrace, func(gen uint64) Msg { return hostGraceExpired{gen: gen} })
}

func (r *Room) stopHostGrace() {
	if r.hostGrace != nil {
		r.hostGrace.t.Stop()
		r.hostGrace = nil
	}
}
